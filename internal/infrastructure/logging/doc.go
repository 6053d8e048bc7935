// Package logging provides structured logging for the relay.
//
// It wraps log/slog with JSON or text output, level filtering and the
// default service/version fields.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Payload bodies are never logged; log ids and codes instead.
package logging
