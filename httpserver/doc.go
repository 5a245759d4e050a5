/*
Package httpserver serves the vigil secret registry over HTTP.

# API Endpoints

  - POST /api/v1/instantiate - Instantiate the registry (signed)
  - POST /api/v1/call - Execute a registry operation (signed)
  - POST /api/v1/query - Always rejected with bad request (signed)
  - POST /api/v1/reply - Always rejected with bad request
  - POST /api/v1/upgrade/pre - Always rejected, the registry is not upgradeable
  - POST /api/v1/upgrade/post - Always rejected, the registry is not upgradeable
  - GET /livez - Liveness check
  - GET /readyz - Readiness check, fails while draining or when storage is down
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Authentication

Signed endpoints take the caller identity from a secp256k1 signature in the
X-Vigil-Signature header over the method, path, X-Vigil-Timestamp,
X-Vigil-Nonce and body (see cryptoutils.SignedRequest). A missing, malformed, stale or replayed
signature is answered with 401.

# Encoding

Request bodies are tagged requests, for example

	{"create_secret": {"name": "will", "value": "c2VjcmV0", "revelation_set": "anyone", "revelation_timestamp": 1700000000}}

encoded as JSON or, with Content-Type application/cbor, as CBOR. Successful
responses are tagged responses ("empty", {"revelation_timestamp": n}, ...).
Registry errors are returned as {"error": {"code": n, "message": "..."}} with
the status codes

  - 405 the contract is not upgradeable (code 0)
  - 400 bad request (code 1)
  - 403 permission denied (code 2)
  - 404 the secret doesn't exist (code 3)
  - 409 the secret already exists (code 4)

Storage and clock failures are answered with a plain 500.
*/
package httpserver
