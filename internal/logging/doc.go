// Package logging sets up structured slog logging for reqfind.
//
// The serve command writes JSON logs to ~/.reqfind/logs/server.log with
// size-based rotation. With --debug the level drops to debug and logs are
// also teed to stderr, except when serving MCP over stdio where stdout and
// stderr belong to the protocol.
package logging
