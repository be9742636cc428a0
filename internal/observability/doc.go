// Package observability provides structured logging for the RAG gateway.
//
// Loggers are zap-based, built once at startup from configuration and
// passed down explicitly; request ids travel as log fields attached by the
// HTTP middleware.
package observability
