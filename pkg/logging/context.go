package logging

import "log/slog"

// WithComponent tags records with the emitting subsystem, e.g. "buffer".
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithIndex tags records with an index name.
func WithIndex(indexName string) *slog.Logger {
	return GetLogger().With("index", indexName)
}
