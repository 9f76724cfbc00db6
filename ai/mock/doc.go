// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder produces deterministic unit vectors from an FNV hash of the
// input text, so tests run without a model server and identical texts always
// map to identical vectors. Function fields replace the default behavior when
// a test needs failures or hand-picked vectors.
//
//	embedder := mock.NewMockEmbedderWithDimension(3)
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("model offline")
//	}
//
//	count := embedder.CallCount()
//	sizes := embedder.BatchSizes()
package mock
