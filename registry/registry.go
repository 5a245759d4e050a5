package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-vigil/interfaces"
)

// Env is the execution environment of a single request.
type Env struct {
	// Caller is the authenticated identity issuing the request.
	Caller interfaces.Identity
	// Store is the request's transaction.
	Store interfaces.SecretStore
	// Clock is consulted only when a non-owner reads a value.
	Clock interfaces.Clock
}

// SecretRegistry executes registry operations on behalf of Env.Caller.
type SecretRegistry struct {
	env    Env
	policy AccessPolicy
	log    *slog.Logger
}

// NewSecretRegistry binds the registry to one request.
func NewSecretRegistry(env Env, log *slog.Logger) *SecretRegistry {
	return &SecretRegistry{
		env:    env,
		policy: NewAccessPolicy(env.Store),
		log:    log,
	}
}

func (r *SecretRegistry) own(name string) interfaces.SecretID {
	return interfaces.SecretID{Owner: r.env.Caller, Name: name}
}

func key(id interfaces.SecretID, field interfaces.Field) interfaces.StorageKey {
	return interfaces.StorageKey{Secret: id, Field: field}
}

// get maps a missing record to ErrSecretDoesntExist.
func (r *SecretRegistry) get(ctx context.Context, id interfaces.SecretID, field interfaces.Field) ([]byte, error) {
	data, err := r.env.Store.Get(ctx, key(id, field))
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, interfaces.ErrSecretDoesntExist
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", field, id, err)
	}
	return data, nil
}

// CreateSecret stores a new secret owned by the caller. It fails with
// ErrSecretAlreadyExists if the caller already has a live secret named name.
func (r *SecretRegistry) CreateSecret(ctx context.Context, name string, value []byte, set interfaces.RevelationSet, ts uint64) error {
	id := r.own(name)

	exists, err := r.policy.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return interfaces.ErrSecretAlreadyExists
	}

	tsData, err := encodeTimestamp(ts)
	if err != nil {
		return err
	}
	setData, err := encodeRevelationSet(set)
	if err != nil {
		return err
	}

	if err := r.env.Store.Insert(ctx, key(id, interfaces.TimestampField), tsData); err != nil {
		return err
	}
	if err := r.env.Store.Insert(ctx, key(id, interfaces.RevelationSetField), setData); err != nil {
		return err
	}
	if err := r.env.Store.Insert(ctx, key(id, interfaces.ValueField), value); err != nil {
		return err
	}

	r.log.Debug("Created secret",
		slog.String("owner", id.Owner.String()),
		slog.Uint64("revelation_timestamp", ts))
	return nil
}

// ResetRevelationTimestamp replaces the timestamp of a caller-owned secret.
// The value and revelation set are left untouched.
func (r *SecretRegistry) ResetRevelationTimestamp(ctx context.Context, name string, ts uint64) error {
	id := r.own(name)

	exists, err := r.policy.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return interfaces.ErrSecretDoesntExist
	}

	tsData, err := encodeTimestamp(ts)
	if err != nil {
		return err
	}
	return r.env.Store.Insert(ctx, key(id, interfaces.TimestampField), tsData)
}

// DeleteSecret removes a caller-owned secret. Deleting a secret that does
// not exist succeeds.
func (r *SecretRegistry) DeleteSecret(ctx context.Context, name string) error {
	id := r.own(name)

	exists, err := r.policy.Exists(ctx, id)
	if err != nil || !exists {
		return err
	}

	for _, field := range interfaces.AllFields {
		if err := r.env.Store.Remove(ctx, key(id, field)); err != nil {
			return err
		}
	}

	r.log.Debug("Deleted secret", slog.String("owner", id.Owner.String()))
	return nil
}

// GetRevelationTimestamp returns the timestamp of owner's secret. Callers
// other than the owner must be members of its revelation set.
func (r *SecretRegistry) GetRevelationTimestamp(ctx context.Context, owner interfaces.Identity, name string) (uint64, error) {
	id := interfaces.SecretID{Owner: owner, Name: name}

	if r.env.Caller != owner {
		if err := r.requireMember(ctx, id); err != nil {
			return 0, err
		}
	}

	data, err := r.get(ctx, id, interfaces.TimestampField)
	if err != nil {
		return 0, err
	}
	return decodeTimestamp(data)
}

// GetRevelationSet returns the revelation set of a caller-owned secret.
func (r *SecretRegistry) GetRevelationSet(ctx context.Context, name string) (interfaces.RevelationSet, error) {
	data, err := r.get(ctx, r.own(name), interfaces.RevelationSetField)
	if err != nil {
		return interfaces.RevelationSet{}, err
	}
	return decodeRevelationSet(data)
}

// GetSecretValue returns the value of owner's secret. Callers other than
// the owner must be members of its revelation set, and the revelation
// timestamp must not be after the current time.
func (r *SecretRegistry) GetSecretValue(ctx context.Context, owner interfaces.Identity, name string) ([]byte, error) {
	id := interfaces.SecretID{Owner: owner, Name: name}

	if r.env.Caller == owner {
		return r.get(ctx, id, interfaces.ValueField)
	}

	if err := r.requireMember(ctx, id); err != nil {
		return nil, err
	}

	now, err := r.env.Clock.Now(ctx)
	if err != nil {
		return nil, err
	}

	tsData, err := r.get(ctx, id, interfaces.TimestampField)
	if err != nil {
		return nil, err
	}
	ts, err := decodeTimestamp(tsData)
	if err != nil {
		return nil, err
	}
	if ts > now {
		return nil, interfaces.ErrPermissionDenied
	}

	value, err := r.get(ctx, id, interfaces.ValueField)
	if err != nil {
		return nil, err
	}

	r.log.Info("Revealed secret",
		slog.String("owner", owner.String()),
		slog.String("caller", r.env.Caller.String()),
		slog.Uint64("revelation_timestamp", ts),
		slog.Uint64("now", now))
	return value, nil
}

func (r *SecretRegistry) requireMember(ctx context.Context, id interfaces.SecretID) error {
	member, err := r.policy.IsRevealableTo(ctx, id, r.env.Caller)
	if err != nil {
		return err
	}
	if !member {
		return interfaces.ErrPermissionDenied
	}
	return nil
}

// Execute runs one call request against the registry.
func (r *SecretRegistry) Execute(ctx context.Context, req interfaces.Request) (interfaces.Response, error) {
	switch req := req.(type) {
	case interfaces.CreateSecretRequest:
		if err := r.CreateSecret(ctx, req.Name, req.Value, req.RevelationSet, req.RevelationTimestamp); err != nil {
			return nil, err
		}
		return interfaces.EmptyResponse{}, nil

	case interfaces.ResetRevelationTimestampRequest:
		if err := r.ResetRevelationTimestamp(ctx, req.Name, req.RevelationTimestamp); err != nil {
			return nil, err
		}
		return interfaces.EmptyResponse{}, nil

	case interfaces.DeleteSecretRequest:
		if err := r.DeleteSecret(ctx, req.Name); err != nil {
			return nil, err
		}
		return interfaces.EmptyResponse{}, nil

	case interfaces.GetRevelationTimestampRequest:
		ts, err := r.GetRevelationTimestamp(ctx, req.Owner, req.Name)
		if err != nil {
			return nil, err
		}
		return interfaces.RevelationTimestampResponse{Timestamp: ts}, nil

	case interfaces.GetRevelationSetRequest:
		set, err := r.GetRevelationSet(ctx, req.Name)
		if err != nil {
			return nil, err
		}
		return interfaces.RevelationSetResponse{Set: set}, nil

	case interfaces.GetSecretValueRequest:
		value, err := r.GetSecretValue(ctx, req.Owner, req.Name)
		if err != nil {
			return nil, err
		}
		return interfaces.SecretValueResponse{Value: value}, nil

	default:
		return nil, interfaces.ErrBadRequest
	}
}
