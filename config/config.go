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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/poiesic/medvec/ai"
	"github.com/poiesic/medvec/generate"
)

// Store backends.
const (
	BackendFiles  = "files"
	BackendBadger = "badger"
)

const (
	vectorsFile = "vectors.bin"
	idsFile     = "ids.bin"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the process-level configuration, read from a TOML file.
type Config struct {
	Source    SourceConfig    `toml:"source"`
	Store     StoreConfig     `toml:"store"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
}

// SourceConfig locates the PubMed record database.
type SourceConfig struct {
	Path     string `toml:"path"`
	PageSize int    `toml:"page_size"`
	// Limit caps the records visited by a generation run. 0 means all.
	Limit int `toml:"limit"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	// Backend is "files" (a vectors/ids file pair) or "badger".
	Backend string `toml:"backend"`
	// Path is the directory holding the persisted store.
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	Host           string `toml:"host"`
	Model          string `toml:"model"`
	BatchSize      int    `toml:"batch_size"`
	Concurrency    int    `toml:"concurrency"`
	MaxInputTokens int    `toml:"max_input_tokens"`
	MaxRetries     int    `toml:"max_retries"`
	// RetryDelay is a Go duration string such as "1s" or "250ms".
	RetryDelay string `toml:"retry_delay"`
}

type SearchConfig struct {
	TopK int `toml:"top_k"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Source: SourceConfig{
			Path:     "pubmed.db",
			PageSize: generate.DefaultPageSize,
		},
		Store: StoreConfig{
			Backend: BackendFiles,
			Path:    "medvec-store",
		},
		Embedding: EmbeddingConfig{
			Host:           aiDefaults.EmbeddingHost,
			Model:          aiDefaults.EmbeddingModel,
			BatchSize:      ai.DefaultBatchSize,
			Concurrency:    1,
			MaxInputTokens: aiDefaults.MaxInputTokens,
			MaxRetries:     3,
			RetryDelay:     "1s",
		},
		Search: SearchConfig{
			TopK: 10,
		},
	}
}

// Load reads path over the defaults. A missing file yields Default().
// Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Write stores cfg as TOML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Source.Path) == "" {
		problems = append(problems, "source.path is required")
	}
	if c.Source.PageSize < 1 {
		problems = append(problems, "source.page_size must be at least 1")
	}
	if c.Source.Limit < 0 {
		problems = append(problems, "source.limit must not be negative")
	}

	switch c.Store.Backend {
	case BackendFiles, BackendBadger:
	default:
		problems = append(problems, fmt.Sprintf("store.backend must be %q or %q, got %q",
			BackendFiles, BackendBadger, c.Store.Backend))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		problems = append(problems, "store.path is required")
	}

	if c.Embedding.BatchSize < 1 {
		problems = append(problems, "embedding.batch_size must be at least 1")
	}
	if c.Embedding.Concurrency < 1 {
		problems = append(problems, "embedding.concurrency must be at least 1")
	}
	if c.Embedding.MaxRetries < 1 {
		problems = append(problems, "embedding.max_retries must be at least 1")
	}
	if _, err := c.RetryDelay(); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.AIConfig().Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if c.Search.TopK < 1 {
		problems = append(problems, "search.top_k must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RetryDelay parses Embedding.RetryDelay.
func (c *Config) RetryDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Embedding.RetryDelay)
	if err != nil {
		return 0, fmt.Errorf("embedding.retry_delay: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("embedding.retry_delay must not be negative")
	}
	return d, nil
}

// AIConfig returns the embedding service configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithMaxInputTokens(c.Embedding.MaxInputTokens),
	)
}

// GeneratorOptions returns the options for ai.NewGenerator.
func (c *Config) GeneratorOptions() []ai.GeneratorOption {
	delay, err := c.RetryDelay()
	if err != nil {
		delay = time.Second
	}
	return []ai.GeneratorOption{
		ai.WithBatchSize(c.Embedding.BatchSize),
		ai.WithConcurrency(c.Embedding.Concurrency),
		ai.WithRetry(c.Embedding.MaxRetries, delay),
	}
}

// GenerateConfig returns the run configuration for a generation run in mode.
func (c *Config) GenerateConfig(mode generate.Mode) *generate.Config {
	return &generate.Config{
		PageSize:       c.Source.PageSize,
		Limit:          c.Source.Limit,
		ReportInterval: c.Source.PageSize,
		Mode:           mode,
	}
}

// VectorsPath is the vector file of the files backend.
func (c *Config) VectorsPath() string {
	return filepath.Join(c.Store.Path, vectorsFile)
}

// IDsPath is the identifier file of the files backend.
func (c *Config) IDsPath() string {
	return filepath.Join(c.Store.Path, idsFile)
}
