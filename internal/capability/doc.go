// Package capability defines the fixed capability registry: named handlers
// performing one unit of domain work each, flagged as read-only or mutating.
// Mutating capabilities follow a two-phase prepare/commit contract so the
// confirmation gate can pause between materializing an action and executing
// it. Every call outcome is captured as an immutable Invocation record.
package capability
