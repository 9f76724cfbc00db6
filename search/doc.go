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

// Package search answers nearest-neighbor queries against a vector store.
//
// A query runs in five steps: validate the text and top_k, embed the text
// through the single-text path, normalize the vector, run exact top-k search
// on the similarity index, and map each result position back to its
// identifier through the same snapshot the index was built from.
//
// The index is cached. Its lifecycle is absent, then built, then stale once
// the store changes. A stale index is rebuilt lazily by the next query, so no
// query is ever answered against data the store no longer holds.
package search
