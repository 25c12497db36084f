// Package api is the thin REST surface over the memory store, the link
// graph, and the consolidation/retention engine. It holds no business
// logic of its own: every handler parses a request, calls into
// memorystore/graph/consolidation, and shapes the result as JSON.
package api
