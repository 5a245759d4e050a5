// Package clock provides the time sources the registry consults when deciding
// whether a secret is due: the system wall clock, the timestamp of the
// latest block of an Ethereum-compatible chain, and a fixed clock for tests.
package clock
