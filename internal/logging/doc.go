// Package logging configures slog for notesearch.
//
// By default records go to stderr as text at the configured level. With
// --debug, JSON records are also written to ~/.notesearch/logs/notesearch.log,
// rotated by size.
package logging
