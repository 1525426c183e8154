// Package session holds the per-conversation state: the append-only turn
// history, the single pending write awaiting confirmation, and the stores
// that persist sessions between turns. Turns within one session are strictly
// sequential; a guard rejects a second concurrent message for the same
// session instead of interleaving it.
package session
