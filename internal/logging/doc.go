// Package logging assembles the structured slog loggers used across the
// publish daemon.
//
// It centralizes level and output plumbing, standardizes attribute keys, and
// exposes context-aware helpers so pipeline code automatically tags log lines
// with package IDs, transition names, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
