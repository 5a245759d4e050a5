// Package cryptoutils authenticates callers of the vigil API.
//
// A caller identity is the Ethereum address recovered from a secp256k1
// signature over the request:
//
//	keccak256(method "\n" path "\n" timestamp "\n" nonce "\n" body)
//
// The signature travels hex-encoded in the X-Vigil-Signature header, the
// Unix timestamp in X-Vigil-Timestamp and the nonce in X-Vigil-Nonce.
// ReplayGuard bounds the timestamp skew
// and rejects signatures it has already accepted within that window, which
// makes a captured signed read useless to anyone but its signer.
package cryptoutils
