package interfaces

import (
	"errors"
	"fmt"
)

// ContractError is one of the flat, causeless failure kinds returned to
// callers. Kinds are compared by identity with errors.Is.
type ContractError struct {
	Code    uint32
	Message string
}

func (e *ContractError) Error() string {
	return e.Message
}

var (
	// ErrUpgradeNotAllowed is returned by both upgrade hooks.
	ErrUpgradeNotAllowed = &ContractError{Code: 0, Message: "the contract is not upgradeable"}

	// ErrBadRequest is returned for structurally invalid routing or payloads.
	ErrBadRequest = &ContractError{Code: 1, Message: "bad request"}

	// ErrPermissionDenied is returned when the caller may not read the secret
	// (not a member of the revelation set, or the secret is not yet due).
	ErrPermissionDenied = &ContractError{Code: 2, Message: "permission denied"}

	// ErrSecretDoesntExist is returned when the addressed secret does not exist.
	ErrSecretDoesntExist = &ContractError{Code: 3, Message: "the secret doesn't exist"}

	// ErrSecretAlreadyExists is returned when creating over a live secret.
	ErrSecretAlreadyExists = &ContractError{Code: 4, Message: "the secret already exists"}
)

var contractErrors = []*ContractError{
	ErrUpgradeNotAllowed,
	ErrBadRequest,
	ErrPermissionDenied,
	ErrSecretDoesntExist,
	ErrSecretAlreadyExists,
}

// ContractErrorFromCode maps a wire code back to its error kind.
func ContractErrorFromCode(code uint32) (*ContractError, error) {
	for _, e := range contractErrors {
		if e.Code == code {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown contract error code %d", code)
}

// AsContractError extracts the error kind from err, if any.
func AsContractError(err error) (*ContractError, bool) {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

var (
	// ErrRecordNotFound is returned by stores when a key is absent.
	ErrRecordNotFound = errors.New("record not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrClockFault signals that the time source returned an unusable answer.
	// It is an environment fault and never mapped to a ContractError.
	ErrClockFault = errors.New("clock returned an unexpected response")
)
