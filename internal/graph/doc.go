// Package graph maintains the temporal knowledge graph of typed links
// between memories: explicit linking, similarity-based auto-linking,
// point-in-time traversal, and cached degree centrality.
package graph
