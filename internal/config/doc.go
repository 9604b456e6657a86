// Package config loads, normalizes, and validates betamode configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BETAMODE_USER_AGENT and BETAMODE_DETECTOR_COMMAND. The Config type
// centralizes every knob the native host and CLI need so the cache, log and
// work directories and the detector command are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical label names, and clear validation errors.
package config
