// Package executor invokes registered capabilities under a per-call timeout
// with panic isolation. Every call, successful or not, is captured as an
// immutable invocation record; failures become coded error envelopes instead
// of propagating upward.
package executor
