// Package intent maps a user query plus conversation history onto a closed
// set of intent labels. The primary pass is a declarative rule table matched
// with word-boundary semantics; a model-based fallback constrained to the
// same label set handles rule misses, and any fallback failure degrades to
// a safe read-only default instead of failing the turn.
package intent
