// Package benchmark serves public benchmark index figures used to put
// portfolio performance in context. A compiled-in dataset covers the common
// indices; deployments can override it with a JSON file.
package benchmark
