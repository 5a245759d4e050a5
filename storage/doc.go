// Package storage provides the transactional secret store with pluggable
// record backends.
//
// TxStore exposes the field-level SecretStore the registry works with. Each
// request runs under a process-wide lock; its writes are buffered and every
// touched secret is persisted as one composite record with a single backend
// operation, so no partially written secret is ever visible.
//
// # Record Backends
//
//   - MemoryBackend for tests and development
//   - FileBackend, one CBOR file per secret with atomic replace
//   - SQLiteBackend (bun), one row per secret
//   - RedisBackend, one hash per secret replaced in MULTI/EXEC
//   - VaultBackend, one KV v2 secret per secret
//   - S3Backend, one object per secret
//
// SealedBackend wraps any of them and encrypts every field with
// XChaCha20-Poly1305, binding the owner, name and field as associated data.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - memory://
//   - file:///var/lib/vigil/
//   - sqlite:///var/lib/vigil/vigil.db
//   - redis://localhost:6379/0?prefix=vigil:secret:
//   - vault://vault.example.com:8200/secret/vigil?token=...&tls=true
//   - s3://bucket-name/prefix/?region=us-west-2
package storage
