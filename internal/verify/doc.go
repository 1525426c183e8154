// Package verify scores each reply and runs the safety scans. Three checks
// run per turn: a deterministic confidence formula over the tool
// invocations, a numeric-claim citation check, and a blocked-phrase scan
// with disclaimer proximity. The combined outcome is pass, flag, or
// escalate.
package verify
