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

// Package vectorstore holds the aligned (ids, vectors) collection that the
// rest of medvec searches.
//
// ids[i] always names vectors[i]. Every write validates the whole batch
// before touching state, normalizes vectors to unit length, and then swaps in
// freshly allocated slices, so a failed write leaves the store unchanged and
// a Snapshot taken earlier is never mutated. The vector width is fixed by the
// first non-empty write and checked on every write after it; Reset and Load
// are the only ways to change it.
//
// Persistence is delegated to a storage.Persister:
//
//	p, _ := files.NewPersister("data/vectors.bin", "data/ids.bin")
//	store, _ := vectorstore.New(vectorstore.WithPersister(p))
//	if err := store.Write(ids, vectors); err != nil { ... }
//	if err := store.Save(ctx); err != nil { ... }
package vectorstore
