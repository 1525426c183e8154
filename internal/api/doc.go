// Package api exposes the REST surface: the chat turn endpoint, the
// fire-and-forget feedback endpoint, upstream health, the invocation log,
// and Prometheus metrics. Authentication is a static bearer token.
package api
