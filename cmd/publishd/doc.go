// Command publishd runs the media publication daemon and its companion
// management commands.
//
// The daemon (publishd run) watches a drop directory, publishes media
// packages through the staged pipeline, and records progress in SQLite.
// The remaining commands submit packages, retry failures, resume parked
// packages, and inspect the queue.
package main
