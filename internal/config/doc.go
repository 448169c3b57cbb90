// Package config loads, normalizes, and validates the publish daemon
// configuration from TOML.
//
// Load resolves the config path (explicit flag, then the user config dir,
// then a project-local publishd.toml), fills defaults for missing values,
// expands ~ in every path field, and rejects unusable values before any
// component starts. A sample config can be written with CreateSample.
package config
