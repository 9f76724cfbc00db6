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

import "errors"

var (
	// ErrIngestion indicates a malformed or missing record field. It is never
	// fatal: the offending field is replaced with an empty value.
	ErrIngestion = errors.New("ingestion error")

	// ErrEmbedding indicates an embedding call failed or was given no input.
	ErrEmbedding = errors.New("embedding error")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimension established by the store.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrLengthMismatch indicates ids and vectors of different lengths.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrDuplicateID indicates an identifier that appears more than once.
	ErrDuplicateID = errors.New("duplicate identifier")

	// ErrPersistence indicates a failure saving or loading the vector store.
	ErrPersistence = errors.New("persistence error")

	// ErrQueryValidation indicates an empty query or a top_k below 1.
	ErrQueryValidation = errors.New("invalid query")

	// ErrInvalidRecord indicates an ArticleRecord failed validation.
	ErrInvalidRecord = errors.New("invalid article record")
)
