// Package index implements a Hierarchical Navigable Small World graph for
// approximate nearest-neighbor search over unit-length embeddings.
//
// An Index is built in one pass from the complete set of catalog vectors.
// Construction runs on several goroutines; once Build returns, the graph is
// immutable and Query is safe for unlimited concurrent use without locking.
// Changing any parameter requires building a new Index.
//
// Similarity is the dot product, which equals cosine similarity for the
// normalized vectors produced by the embedding package.
package index
