// Package config loads the service configuration from YAML, layering the file
// over built-in defaults and validating each section.
package config
