// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/poiesic/medvec/core"
)

const schema = `
	CREATE TABLE IF NOT EXISTS pubmed_articles (
		pmid TEXT PRIMARY KEY,
		pmcid TEXT,
		section_title TEXT,
		article_title TEXT,
		abstract TEXT,
		date_revised TEXT,
		date_completed TEXT,
		mesh_terms TEXT
	)`

// MemorySource is a writable Source for tests and fixtures.
type MemorySource struct {
	*Source
}

// OpenMemorySource creates an empty in-memory pubmed_articles database.
// Caller must close the source when done.
func OpenMemorySource() (*MemorySource, error) {
	return openWritable(":memory:")
}

// CreateFileSource creates (or opens) a pubmed_articles database file at path
// for writing fixtures.
func CreateFileSource(path string) (*MemorySource, error) {
	return openWritable(path)
}

func openWritable(path string) (*MemorySource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	src, err := newSource(db, path)
	if err != nil {
		return nil, err
	}
	return &MemorySource{Source: src}, nil
}

// InsertArticles stores records, encoding MeSH terms as a JSON array.
// Empty optional fields are stored as NULL.
func (m *MemorySource) InsertArticles(ctx context.Context, records ...*core.ArticleRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		mesh, err := json.Marshal(r.MeshTerms)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pubmed_articles (pmid, pmcid, section_title, article_title, abstract, mesh_terms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.PMID, nullable(r.PMCID), nullable(r.SectionTitle), nullable(r.ArticleTitle),
			nullable(r.Abstract), string(mesh))
		if err != nil {
			return fmt.Errorf("inserting %s: %w", r.PMID, err)
		}
	}
	return tx.Commit()
}

// Exec runs a raw statement, for fixtures the typed helpers can't express.
func (m *MemorySource) Exec(ctx context.Context, query string, args ...any) error {
	_, err := m.db.ExecContext(ctx, query, args...)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
