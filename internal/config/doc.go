// Package config handles configuration loading with environment variable substitution.
//
// Configuration files are YAML and support ${VAR} syntax for environment
// variable interpolation. Files named *.json or *.jsonc are accepted too;
// comments and trailing commas are stripped before parsing.
package config
