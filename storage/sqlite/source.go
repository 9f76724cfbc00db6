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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
)

const (
	selectColumns = `SELECT pmid, pmcid, section_title, article_title, abstract, mesh_terms
		FROM pubmed_articles`
	visible = `abstract IS NOT NULL`
)

// Source implements storage.RecordSource over a pubmed_articles table.
type Source struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens the SQLite database at path for reading.
// Returns storage.ErrNotFound if the file does not exist.
//
// Returns storage.RecordSource interface to enforce abstraction.
func Open(path string) (storage.RecordSource, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: database %s", storage.ErrNotFound, path)
		}
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return newSource(db, path)
}

func newSource(db *sql.DB, path string) (*Source, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &Source{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "sqlite-source", "path", path),
	}, nil
}

// Close closes the database connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// Count returns the number of records with an abstract.
func (s *Source) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pubmed_articles WHERE `+visible).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// Page returns up to limit records starting at offset, in rowid order.
func (s *Source) Page(ctx context.Context, offset, limit int) ([]*core.ArticleRecord, error) {
	if offset < 0 || limit < 1 {
		return nil, fmt.Errorf("%w: offset %d, limit %d", storage.ErrInvalidQuery, offset, limit)
	}

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE `+visible+` ORDER BY rowid LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records := make([]*core.ArticleRecord, 0, limit)
	for rows.Next() {
		record, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Record returns the record with the given PMID.
func (s *Source) Record(ctx context.Context, id string) (*core.ArticleRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE pmid = ?`, id)
	record, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: record %s", storage.ErrNotFound, id)
	}
	return record, err
}

// ExternalReference returns the PMCID recorded for id, or "" if there is none.
func (s *Source) ExternalReference(ctx context.Context, id string) (string, error) {
	var pmcid sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pmcid FROM pubmed_articles WHERE pmid = ?`, id).Scan(&pmcid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: record %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("looking up reference: %w", err)
	}
	return strings.TrimSpace(pmcid.String), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Source) scanRecord(row scanner) (*core.ArticleRecord, error) {
	var pmid, pmcid, section, title, abstract, mesh sql.NullString
	if err := row.Scan(&pmid, &pmcid, &section, &title, &abstract, &mesh); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	record := &core.ArticleRecord{
		PMID:         pmid.String,
		PMCID:        pmcid.String,
		SectionTitle: section.String,
		ArticleTitle: title.String,
		Abstract:     abstract.String,
		MeshTerms:    s.parseMeshTerms(pmid.String, mesh),
	}
	if !section.Valid || !title.Valid {
		s.logger.Debug("record has missing title fields", "pmid", record.PMID)
	}
	return record, nil
}

// parseMeshTerms decodes the JSON term list, recovering with an empty list.
func (s *Source) parseMeshTerms(pmid string, raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return []string{}
	}
	var terms []string
	if err := json.Unmarshal([]byte(raw.String), &terms); err != nil {
		s.logger.Warn("malformed MeSH terms, using empty list",
			"pmid", pmid, "err", fmt.Errorf("%w: %w", core.ErrIngestion, err))
		return []string{}
	}
	if terms == nil {
		terms = []string{}
	}
	return terms
}
