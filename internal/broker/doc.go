// Package broker talks to the portfolio backend: holdings, activity history
// and activity imports. Reads degrade to a compiled-in reference portfolio
// when the backend is unreachable; writes never do, a failed import is
// reported as a failure.
package broker
