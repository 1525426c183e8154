// Package router maps intent labels and session confirmation state to
// routing decisions: which capabilities to run, whether a write must be
// prepared for confirmation, and how to treat unrelated queries while a
// write is pending. The pending-write policy is explicit configuration.
package router
