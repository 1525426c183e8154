// Package handlers provides the domain capability handlers registered with
// the capability registry: portfolio analysis, transaction history and
// categorization, compliance and tax rule engines, market and city data
// reads, and the two-phase transaction write handlers. Handlers never let
// faults escape; every outcome is a payload or a coded error.
package handlers
