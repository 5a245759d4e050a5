package registry

import (
	"context"
	"errors"

	"github.com/ruteri/tee-vigil/interfaces"
)

// AccessPolicy answers existence and membership questions from stored
// records. It never modifies the store.
type AccessPolicy struct {
	store interfaces.SecretStore
}

func NewAccessPolicy(store interfaces.SecretStore) AccessPolicy {
	return AccessPolicy{store: store}
}

// Exists reports whether the timestamp record of id is present.
func (p AccessPolicy) Exists(ctx context.Context, id interfaces.SecretID) (bool, error) {
	_, err := p.store.Get(ctx, interfaces.StorageKey{Secret: id, Field: interfaces.TimestampField})
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsRevealableTo reports whether entity is a member of the revelation set
// of id. A missing set record admits nobody.
func (p AccessPolicy) IsRevealableTo(ctx context.Context, id interfaces.SecretID, entity interfaces.Identity) (bool, error) {
	data, err := p.store.Get(ctx, interfaces.StorageKey{Secret: id, Field: interfaces.RevelationSetField})
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	set, err := decodeRevelationSet(data)
	if err != nil {
		return false, err
	}
	return set.Contains(entity), nil
}
