// Package index provides exact inner-product top-k search over a vector
// store snapshot.
//
// Stored vectors are unit length, so inner product equals cosine similarity.
// Ranking is deterministic: higher scores first, ties broken by ascending
// row position, and zero (or non-finite) rows always after every regular row
// whatever their score.
package index
