package interfaces

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// RevelationSet is the set of identities allowed to read a secret once its
// revelation timestamp has passed. It is either Anyone or an explicit list.
type RevelationSet struct {
	anyone   bool
	entities []Identity
}

// Anyone returns the revelation set every identity is a member of.
func Anyone() RevelationSet {
	return RevelationSet{anyone: true}
}

// Entities returns a revelation set with explicit membership.
func Entities(ids ...Identity) RevelationSet {
	entities := make([]Identity, len(ids))
	copy(entities, ids)
	return RevelationSet{entities: entities}
}

// IsAnyone reports whether the set admits every identity.
func (s RevelationSet) IsAnyone() bool {
	return s.anyone
}

// Members returns a copy of the explicit members. It is nil for Anyone.
func (s RevelationSet) Members() []Identity {
	if s.anyone {
		return nil
	}
	out := make([]Identity, len(s.entities))
	copy(out, s.entities)
	return out
}

// Contains reports whether entity is a member.
func (s RevelationSet) Contains(entity Identity) bool {
	if s.anyone {
		return true
	}
	for _, e := range s.entities {
		if e == entity {
			return true
		}
	}
	return false
}

// Equal compares two revelation sets including member order.
func (s RevelationSet) Equal(other RevelationSet) bool {
	if s.anyone != other.anyone || len(s.entities) != len(other.entities) {
		return false
	}
	for i := range s.entities {
		if s.entities[i] != other.entities[i] {
			return false
		}
	}
	return true
}

func (s RevelationSet) String() string {
	if s.anyone {
		return "anyone"
	}
	return fmt.Sprintf("entities%v", s.entities)
}

// MarshalJSON encodes Anyone as "anyone" and explicit sets as
// {"entities": ["0x..", ...]}.
func (s RevelationSet) MarshalJSON() ([]byte, error) {
	if s.anyone {
		return json.Marshal("anyone")
	}
	entities := s.entities
	if entities == nil {
		entities = []Identity{}
	}
	return json.Marshal(map[string][]Identity{"entities": entities})
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (s *RevelationSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}
		if tag != "anyone" {
			return fmt.Errorf("unknown revelation set %q", tag)
		}
		*s = Anyone()
		return nil
	}

	var tagged map[string][]Identity
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	entities, ok := tagged["entities"]
	if !ok || len(tagged) != 1 {
		return errors.New("revelation set must be \"anyone\" or {\"entities\": [...]}")
	}
	*s = Entities(entities...)
	return nil
}

// MarshalCBOR mirrors MarshalJSON: a text string for Anyone, a single-entry
// map for explicit sets.
func (s RevelationSet) MarshalCBOR() ([]byte, error) {
	if s.anyone {
		return cbor.Marshal("anyone")
	}
	entities := s.entities
	if entities == nil {
		entities = []Identity{}
	}
	return cbor.Marshal(map[string][]Identity{"entities": entities})
}

// UnmarshalCBOR accepts the forms produced by MarshalCBOR.
func (s *RevelationSet) UnmarshalCBOR(data []byte) error {
	var tag string
	if err := cbor.Unmarshal(data, &tag); err == nil {
		if tag != "anyone" {
			return fmt.Errorf("unknown revelation set %q", tag)
		}
		*s = Anyone()
		return nil
	}

	var tagged map[string][]Identity
	if err := cbor.Unmarshal(data, &tagged); err != nil {
		return err
	}
	entities, ok := tagged["entities"]
	if !ok || len(tagged) != 1 {
		return errors.New("revelation set must be \"anyone\" or {\"entities\": [...]}")
	}
	*s = Entities(entities...)
	return nil
}
