// Package mcp exposes the indexing and retrieval engine as an MCP server
// over stdio.
//
// Four tools are registered:
//
//	index_project   index a directory tree (optionally forced)
//	search          semantic search, optionally scoped to one project
//	get_status      statistics for one project, or a listing of all
//	delete_project  remove a project and its chunks
//
// Handlers stay thin: they validate raw arguments, call one orchestrator
// operation, and render the result as indented JSON text. Domain sentinel
// errors are mapped onto JSON-RPC error codes in mapError, so a client can
// tell an empty query (-32004) from a missing project (-32002) from a
// provider outage (-32005) without parsing message strings.
//
// The protocol runs on stdout, so all logging goes to stderr via zap.
// Mutating tools invalidate the searcher's query cache before returning.
package mcp
