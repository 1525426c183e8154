// Package cities resolves cost-of-living and housing snapshots for cities
// worldwide from a Teleport-style urban-area API, with an alias table for
// common short names and a compiled-in fallback dataset for major cities
// when the API is unreachable.
package cities
