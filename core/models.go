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

package core

// ArticleRecord is a single literature record as delivered by a record source.
// Optional fields hold the empty string (or a nil slice) when absent.
type ArticleRecord struct {
	PMID         string   // stable identifier, unique within a corpus
	PMCID        string   // optional full-text reference
	SectionTitle string   // journal title
	ArticleTitle string
	Abstract     string
	MeshTerms    []string
}

// Match is a positional hit produced by the similarity index.
type Match struct {
	Position int
	Score    float32
}

// SearchResult is a ranked hit mapped back to its identifier.
type SearchResult struct {
	ID    string
	Score float32
	// Reference is the full-text reference for ID, when one is known.
	Reference string
}
