// Package main (cmd/vigilctl) is a command-line client for a vigil server.
//
// Every command signs its request with the key given by --key (or
// VIGIL_KEY). Generate one with
//
//	vigilctl keygen
//
// A new seal seed for the server, split between custodians:
//
//	vigilctl seal-split --parts=5 --threshold=3 --out-dir=./shares
//
// An owner stores a secret revealed to one beneficiary in 30 days, and keeps
// postponing it:
//
//	vigilctl --key=$OWNER create --name=will --value-file=will.txt \
//	    --reveal-to=0x8ba1f109551bD432803012645Ac136ddd64DBA72 --in=720h
//	vigilctl --key=$OWNER reset --name=will --in=720h
//
// Once the deadline has passed, the beneficiary reads it:
//
//	vigilctl --key=$BENEFICIARY value --owner=$OWNER_ADDR --name=will
package main
