// Package embeddings turns text and images into unit-length float32
// vectors.
//
// A Model is one backend: local ONNX via fastembed (cgo builds only), a
// Text Embeddings Inference server, or any OpenAI-compatible /embeddings
// endpoint. Provider wraps a Model with the process-wide contract the rest
// of the engine relies on: the model is loaded at most once behind WarmUp,
// inference is serialised, vectors are L2-normalised and checked against
// the model dimension, and failures are classified with errdefs.
package embeddings
