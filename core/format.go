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

import "strings"

const (
	sectionTitleLabel = "Section Title"
	articleTitleLabel = "Article Title"
	abstractLabel     = "Abstract"
	meshTermsLabel    = "MeSH Terms"
)

// FormatRecord renders a record as the canonical text used for embedding.
//
// Fields appear in a fixed order: section title, article title, abstract and
// MeSH terms. Absent fields are left out together with their label so that no
// placeholder text reaches the embedding model. Terms are rendered as a
// bracketed, comma separated list.
func FormatRecord(record *ArticleRecord) string {
	if record == nil {
		return ""
	}

	parts := make([]string, 0, 4)
	add := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		parts = append(parts, label+": "+value)
	}

	add(sectionTitleLabel, record.SectionTitle)
	add(articleTitleLabel, record.ArticleTitle)
	add(abstractLabel, record.Abstract)
	add(meshTermsLabel, formatTerms(record.MeshTerms))

	return strings.Join(parts, ", ")
}

func formatTerms(terms []string) string {
	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			cleaned = append(cleaned, term)
		}
	}
	if len(cleaned) == 0 {
		return ""
	}
	return "[" + strings.Join(cleaned, ", ") + "]"
}
