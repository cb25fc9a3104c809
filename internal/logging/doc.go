// Package logging configures structured JSON logging for academykb.
//
// Logs go to a size-rotated file under the configured log directory and,
// for interactive commands, to stderr as well. The MCP server mode never
// writes to stderr or stdout because stdout carries the protocol stream.
package logging
