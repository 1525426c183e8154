// Package market fetches live quotes from a Yahoo-style finance chart API
// and degrades to a compiled-in reference dataset when the upstream is
// unreachable, so a turn can always be answered. Fallback quotes are marked
// so the verification layer can cite them as reference data rather than
// live data.
package market
