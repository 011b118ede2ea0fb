// Package config loads castbot's configuration: an optional JSON or YAML
// file, overlaid by environment variables (.env files included), with hot
// reload through fsnotify.
package config
