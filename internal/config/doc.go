// Package config loads and validates recorder configuration.
//
// Configuration is YAML with ${VAR} environment variable expansion, so
// credentials never need to live in the file itself. Defaults are applied
// before validation; validation failures are fatal at startup.
package config
