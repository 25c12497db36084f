// Package embed adapts Ollama as the reference Embedder and LLM
// implementation consumed by the core (spec §6). The core itself never
// imports this package or knows its vendor: internal/app constructs a
// *Client and passes its Merge method into consolidation as a plain
// function value, so swapping embedding providers never touches core code.
package embed
