// Package main (cmd/httpserver) runs the vigil dead-man's switch server.
//
// Owners register secrets together with a revelation set and a revelation
// timestamp, and keep pushing the timestamp into the future while they are
// able to. Once the timestamp passes, members of the revelation set can read
// the secret value.
//
// Configuration comes from defaults, an optional TOML file (--config), VIGIL_
// environment variables and command-line flags, in increasing precedence.
//
// Example usage with a sealed SQLite store and chain time:
//
//	vigil-server --listen-addr=0.0.0.0:8080 \
//	    --storage=sqlite:///var/lib/vigil/vigil.db \
//	    --seal-key=0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef \
//	    --clock=chain --rpc-addr=http://localhost:8545
package main
