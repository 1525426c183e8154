// Package gate implements the two-phase confirmation state machine that
// guards every mutating capability. Prepare materializes the full parameter
// set (resolving prices from live data when omitted) and records a pending
// write on the session; Confirm commits exactly the materialized parameters
// once; Cancel discards without side effects.
package gate
