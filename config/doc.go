// Package config loads the vigil server configuration from an optional TOML
// file and VIGIL_ environment variables on top of built-in defaults.
//
// Environment variable names map onto keys by lowercasing, turning single
// underscores into section separators and double underscores into literal
// underscores: VIGIL_SERVER_LISTEN__ADDR sets server.listen_addr.
package config
