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

// Package storage defines the persistence seams used by medvec.
//
// Two kinds of storage sit behind these interfaces:
//
//   - Persister: saves and restores the vector store's (ids, vectors) pair.
//     Implementations live in storage/files (a paired ids/vectors file set)
//     and storage/badger (an embedded key-value store).
//   - RecordSource: a read-only, page-oriented view of the article corpus.
//     The SQLite implementation lives in storage/sqlite.
//
// # Constructor Return Type Pattern
//
// Public constructors return interface types:
//
//	p, err := files.NewPersister(dir)  // returns storage.Persister
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Atomicity
//
// A Save either fully replaces the previous state or leaves it untouched. A
// Load never observes ids from one save paired with vectors from another;
// every persisted state is stamped with a generation identifier and a
// checksum, and any mismatch surfaces as ErrCorrupt.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Callers still serialize
// Save calls against one another when they need last-writer-wins ordering.
package storage
