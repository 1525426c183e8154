// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs behind a single completion interface
// used by intent classification and response synthesis.
package llm
