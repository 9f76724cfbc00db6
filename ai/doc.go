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

// Package ai provides the embedding abstractions used by medvec.
//
// The Embedder interface is the seam between medvec and the model that turns
// text into vectors. Production code obtains one from ai/openai, which talks
// to any OpenAI-compatible embedding endpoint (Ollama, LocalAI, vLLM). Tests
// use ai/mock, which produces deterministic vectors without a network.
//
// Generator wraps an Embedder with the behavior the rest of the module relies
// on: chunked batching, bounded concurrency on an ants worker pool, retry
// with exponential backoff, and all-or-nothing results that stay positionally
// aligned with their inputs.
//
// # Usage
//
//	cfg := ai.DefaultConfig()
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	gen, err := ai.NewGenerator(provider.Embedder(), ai.WithBatchSize(32))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gen.Release()
//
//	vectors, err := gen.Embed(ctx, texts)
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inspect call counts and inject failures.
package ai
