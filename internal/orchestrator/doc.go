// Package orchestrator drives the per-turn pipeline: classify, route,
// execute, verify, synthesize, persist. Turns for the same session are
// strictly sequential; a concurrent message is rejected rather than
// interleaved. Classification and generation failures degrade to safe
// defaults instead of aborting the turn.
package orchestrator
