// Package config loads the medvec process configuration from a TOML file.
//
// A file may set any subset of keys; the rest keep their defaults:
//
//	[source]
//	path = "pubmed.db"
//	page_size = 100
//	limit = 0
//
//	[store]
//	backend = "files"   # or "badger"
//	path = "medvec-store"
//
//	[embedding]
//	host = "http://localhost:11434/v1"
//	model = "all-minilm"
//	batch_size = 10
//	concurrency = 1
//	max_input_tokens = 180
//	max_retries = 3
//	retry_delay = "1s"
//
//	[search]
//	top_k = 10
package config
