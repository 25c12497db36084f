// Package scope detects and enforces the project scope id every memory
// store write and read carries: entities tagged with a scope id are only
// visible within it (plus the always-visible global scope, scope_id ==
// ""), and cross-scope graph edges are rejected as a contract violation.
package scope
