// Package embedding turns catalog descriptions and search queries into
// unit-length vectors.
//
// A Generator wraps an ai.Embedder with everything the rest of the system
// relies on:
//
//   - Text formatting: queries and catalog passages get different prefixes
//     (E5-style "query: " and "passage: "), selected by an explicit flag.
//   - Micro-batching: inputs are split into batches of a configured size and
//     embedded on a bounded ants worker pool. Output order always matches
//     input order and batch boundaries never change the vectors.
//   - Normalization: every vector is scaled to unit length so cosine
//     similarity is a dot product.
//   - Model lifecycle: the model is probed once, on Load or the first Embed
//     call, which fixes the dimension. A failed probe is reported as a
//     core.ModelLoadError and is not retried. A probe abandoned because the
//     caller's context ended does not count.
//   - Transport resilience: batch requests are rate limited and retried with
//     exponential backoff. Responses of the wrong shape (vector count or
//     dimension) fail immediately.
package embedding
