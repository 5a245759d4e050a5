// Package interfaces defines the core types and contracts of the vigil
// dead-man's switch service, separating them from their implementations.
//
// # Data Model
//
//   - Identity: 20-byte address of an authenticated caller or secret owner
//   - SecretID: (owner, name) pair addressing one secret
//   - Field / StorageKey: the three records stored per secret
//   - RevelationSet: Anyone, or an explicit list of identities
//
// A secret exists if and only if its timestamp record is present.
//
// # Storage Interfaces
//
//   - SecretStore: field-level Get/Insert/Remove used by the registry
//   - TransactionalStore: serializes requests and commits their writes atomically
//   - RecordBackend: persists one composite Record per secret
//
// # Requests and Responses
//
// Request and Response are closed sum types. WireFormat encodes them as
// externally tagged JSON or CBOR values, e.g. "instantiate" or
// {"create_secret": {...}}.
//
// # Error Types
//
// ContractError kinds (with stable numeric codes) are returned to callers:
//
//   - ErrUpgradeNotAllowed (0)
//   - ErrBadRequest (1)
//   - ErrPermissionDenied (2)
//   - ErrSecretDoesntExist (3)
//   - ErrSecretAlreadyExists (4)
//
// Environment faults (ErrClockFault, ErrBackendUnavailable) are never mapped
// to a ContractError.
package interfaces
