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

package generate

import (
	"context"

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
)

const (
	// DefaultPageSize is the default number of records fetched per page.
	DefaultPageSize = 100
)

// RecordIterator pages through a record source.
type RecordIterator struct {
	source   storage.RecordSource
	pageSize int
	limit    int
}

// NewRecordIterator creates a new record iterator.
// pageSize: records per fetch (<= 0 means DefaultPageSize)
// limit: maximum records to visit (<= 0 means all)
func NewRecordIterator(source storage.RecordSource, pageSize, limit int) *RecordIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if limit < 0 {
		limit = 0
	}

	return &RecordIterator{
		source:   source,
		pageSize: pageSize,
		limit:    limit,
	}
}

// Total returns how many records ForEach will visit.
func (it *RecordIterator) Total(ctx context.Context) (int, error) {
	count, err := it.source.Count(ctx)
	if err != nil {
		return 0, err
	}
	if it.limit > 0 && it.limit < count {
		return it.limit, nil
	}
	return count, nil
}

// ForEach calls fn with each page of records, in source order.
// Iteration stops on first error from fn, at the limit, or at the end of the source.
// Context cancellation is checked between pages.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.ArticleRecord) error) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		size := it.pageSize
		if it.limit > 0 {
			size = min(size, it.limit-offset)
			if size <= 0 {
				return nil
			}
		}

		page, err := it.source.Page(ctx, offset, size)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		if err := fn(page); err != nil {
			return err
		}

		offset += len(page)
		if len(page) < size {
			return nil
		}
	}
}
