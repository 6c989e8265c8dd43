// Package config loads, normalizes, and validates mediachain configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the MEDIACHAIN_CACHE_DIR
// environment override. The Config type centralizes every knob the chain
// executor, the stage processes, and the CLI need.
//
// HashInputs is the single source for the job-level config hash: any change
// to a stage command, its arguments, or its settings yields a different cache
// key for every step.
package config
