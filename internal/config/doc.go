// Package config loads, normalizes, and validates homebox-scan configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HOMEBOX_USERNAME and VISION_API_KEY. The Config type centralizes every knob
// the CLI and workflow engine need so the inventory server, detection model,
// session store, and submission policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
