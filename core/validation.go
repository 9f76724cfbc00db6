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

import (
	"fmt"
	"strings"
)

// ValidateRecord checks the invariants a record source must uphold: a
// non-empty identifier and an abstract.
func ValidateRecord(record *ArticleRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if strings.TrimSpace(record.PMID) == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidRecord)
	}
	if strings.TrimSpace(record.Abstract) == "" {
		return fmt.Errorf("%w: record %s has no abstract", ErrInvalidRecord, record.PMID)
	}
	return nil
}

// ValidateQuery checks query text and result count before any model call.
func ValidateQuery(query string, topK int) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query text is empty", ErrQueryValidation)
	}
	if topK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrQueryValidation, topK)
	}
	return nil
}
