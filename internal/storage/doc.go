// Package storage defines the persistence contracts for invocation logs
// and user feedback, with file-backed in-memory implementations used when
// no database is configured.
package storage
