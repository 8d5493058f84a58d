// Package config loads and validates Kennel Core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by KENNELCORE_* environment variables. Secrets
// (catalog token, MQTT password, push server key, JWT secret) are expected
// to arrive via the environment rather than the YAML file.
package config
