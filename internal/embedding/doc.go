// Package embedding provides resilient embedding generation across multiple
// interchangeable providers.
//
// Providers (fastembed local ONNX, TEI, OpenAI) implement a fixed capability
// interface and are registered at configuration load time. The Chain tries
// providers in configured order with per-attempt retry, per-provider circuit
// breaking, and a total wall-clock budget, returning the first success or an
// aggregate failure describing every attempt.
package embedding
