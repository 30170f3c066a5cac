// Package config loads, normalizes, and validates triage configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// TRIAGE_OUTPUT_DIR and TRIAGE_PIPELINE_CONFIG. The Config type centralizes
// every knob a run needs: where the pipeline definition lives, where output
// goes, how much unallocated space to capture, and which queue backend to use.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, parsed sizes, and clear validation errors.
package config
