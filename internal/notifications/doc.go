// Package notifications delivers publication events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The service subscribes to manager events so pipeline code never
// touches HTTP glue.
//
// Extend this package if you need alternative transports; the daemon depends
// only on the simple Service interface.
package notifications
