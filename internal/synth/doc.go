// Package synth renders tool invocation results into the final
// natural-language reply. A language model performs the rendering under a
// strict system prompt; any failure or timeout degrades to a deterministic
// template so a turn never aborts on generation.
package synth
