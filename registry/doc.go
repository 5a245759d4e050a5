// Package registry implements the dead-man's switch secret registry.
//
// A secret is identified by its owner and a name chosen by the owner. It
// holds a value, a revelation timestamp and a revelation set. The owner may
// always read and manage it; members of the revelation set may read the
// timestamp at any time and the value once the timestamp has passed. The
// owner keeps the secret hidden by resetting the timestamp forward.
//
// # Components
//
//   - AccessPolicy: existence and membership predicates over stored records
//   - SecretRegistry: the six operations, executed for one caller against
//     one store transaction
//   - Dispatcher: routes tagged requests to the registry and implements the
//     lifecycle hooks (instantiate, query, reply, upgrades)
//
// # Existence
//
// A secret exists if and only if its timestamp record is present. Create and
// delete write all three records in the same transaction; reset writes only
// the timestamp.
//
// # Error Kinds
//
// Operations fail with the interfaces.ContractError kinds. Store and clock
// faults are returned as ordinary errors and abort the transaction.
package registry
