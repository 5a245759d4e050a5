package interfaces

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// RequestKind is the external tag of a request on the wire.
type RequestKind string

const (
	KindInstantiate              RequestKind = "instantiate"
	KindCreateSecret             RequestKind = "create_secret"
	KindResetRevelationTimestamp RequestKind = "reset_revelation_timestamp"
	KindDeleteSecret             RequestKind = "delete_secret"
	KindGetRevelationTimestamp   RequestKind = "get_revelation_timestamp"
	KindGetRevelationSet         RequestKind = "get_revelation_set"
	KindGetSecretValue           RequestKind = "get_secret_value"
)

// Request is the closed set of requests accepted by the dispatcher.
type Request interface {
	Kind() RequestKind
	isRequest()
}

// InstantiateRequest is the only payload accepted at instantiation.
type InstantiateRequest struct{}

// CreateSecretRequest creates a secret owned by the caller.
type CreateSecretRequest struct {
	Name                string        `json:"name" cbor:"name"`
	Value               []byte        `json:"value" cbor:"value"`
	RevelationSet       RevelationSet `json:"revelation_set" cbor:"revelation_set"`
	RevelationTimestamp uint64        `json:"revelation_timestamp" cbor:"revelation_timestamp"`
}

// ResetRevelationTimestampRequest moves the deadline of a caller-owned secret.
type ResetRevelationTimestampRequest struct {
	Name                string `json:"name" cbor:"name"`
	RevelationTimestamp uint64 `json:"revelation_timestamp" cbor:"revelation_timestamp"`
}

// DeleteSecretRequest removes a caller-owned secret.
type DeleteSecretRequest struct {
	Name string `json:"name" cbor:"name"`
}

// GetRevelationTimestampRequest reads the deadline of any owner's secret.
type GetRevelationTimestampRequest struct {
	Owner Identity `json:"owner" cbor:"owner"`
	Name  string   `json:"name" cbor:"name"`
}

// GetRevelationSetRequest reads the revelation set of a caller-owned secret.
type GetRevelationSetRequest struct {
	Name string `json:"name" cbor:"name"`
}

// GetSecretValueRequest reads the value of any owner's secret.
type GetSecretValueRequest struct {
	Owner Identity `json:"owner" cbor:"owner"`
	Name  string   `json:"name" cbor:"name"`
}

func (InstantiateRequest) Kind() RequestKind              { return KindInstantiate }
func (CreateSecretRequest) Kind() RequestKind             { return KindCreateSecret }
func (ResetRevelationTimestampRequest) Kind() RequestKind { return KindResetRevelationTimestamp }
func (DeleteSecretRequest) Kind() RequestKind             { return KindDeleteSecret }
func (GetRevelationTimestampRequest) Kind() RequestKind   { return KindGetRevelationTimestamp }
func (GetRevelationSetRequest) Kind() RequestKind         { return KindGetRevelationSet }
func (GetSecretValueRequest) Kind() RequestKind           { return KindGetSecretValue }

func (InstantiateRequest) isRequest()              {}
func (CreateSecretRequest) isRequest()             {}
func (ResetRevelationTimestampRequest) isRequest() {}
func (DeleteSecretRequest) isRequest()             {}
func (GetRevelationTimestampRequest) isRequest()   {}
func (GetRevelationSetRequest) isRequest()         {}
func (GetSecretValueRequest) isRequest()           {}

// ResponseKind is the external tag of a response on the wire.
type ResponseKind string

const (
	KindEmpty               ResponseKind = "empty"
	KindRevelationTimestamp ResponseKind = "revelation_timestamp"
	KindRevelationSet       ResponseKind = "revelation_set"
	KindSecretValue         ResponseKind = "secret_value"
)

// Response is the closed set of successful results.
type Response interface {
	Kind() ResponseKind
	isResponse()
}

type EmptyResponse struct{}

type RevelationTimestampResponse struct {
	Timestamp uint64
}

type RevelationSetResponse struct {
	Set RevelationSet
}

type SecretValueResponse struct {
	Value []byte
}

func (EmptyResponse) Kind() ResponseKind               { return KindEmpty }
func (RevelationTimestampResponse) Kind() ResponseKind { return KindRevelationTimestamp }
func (RevelationSetResponse) Kind() ResponseKind       { return KindRevelationSet }
func (SecretValueResponse) Kind() ResponseKind         { return KindSecretValue }

func (EmptyResponse) isResponse()               {}
func (RevelationTimestampResponse) isResponse() {}
func (RevelationSetResponse) isResponse()       {}
func (SecretValueResponse) isResponse()         {}

// errorTag is the response tag carrying a ContractError.
const errorTag = "error"

type wireError struct {
	Code    uint32 `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
}

// WireFormat encodes requests and responses as externally tagged values:
// unit variants are a bare tag string, others a single-entry map from tag
// to payload.
type WireFormat struct {
	Name        string
	ContentType string

	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
	split     func([]byte) (tag string, payload []byte, err error)
	isNull    func([]byte) bool
}

var (
	// JSONFormat is the default wire format.
	JSONFormat = WireFormat{
		Name:        "json",
		ContentType: "application/json",
		marshal:     json.Marshal,
		unmarshal:   json.Unmarshal,
		split: func(data []byte) (string, []byte, error) {
			return splitTagged[json.RawMessage](data, json.Unmarshal)
		},
		isNull: func(payload []byte) bool {
			return bytes.Equal(bytes.TrimSpace(payload), []byte("null"))
		},
	}

	// CBORFormat is the compact binary wire format.
	CBORFormat = WireFormat{
		Name:        "cbor",
		ContentType: "application/cbor",
		marshal:     cbor.Marshal,
		unmarshal:   cbor.Unmarshal,
		split: func(data []byte) (string, []byte, error) {
			return splitTagged[cbor.RawMessage](data, cbor.Unmarshal)
		},
		// null and undefined
		isNull: func(payload []byte) bool {
			return len(payload) == 1 && (payload[0] == 0xf6 || payload[0] == 0xf7)
		},
	}
)

func splitTagged[R ~[]byte](data []byte, unmarshal func([]byte, any) error) (string, []byte, error) {
	var tag string
	if err := unmarshal(data, &tag); err == nil {
		return tag, nil, nil
	}

	var tagged map[string]R
	if err := unmarshal(data, &tagged); err != nil {
		return "", nil, err
	}
	if len(tagged) != 1 {
		return "", nil, fmt.Errorf("expected exactly one tag, got %d", len(tagged))
	}
	for tag, payload := range tagged {
		return tag, []byte(payload), nil
	}
	return "", nil, errors.New("unreachable")
}

func (f WireFormat) tagged(tag string, payload any) ([]byte, error) {
	return f.marshal(map[string]any{tag: payload})
}

// MarshalRequest encodes a request.
func (f WireFormat) MarshalRequest(req Request) ([]byte, error) {
	switch r := req.(type) {
	case InstantiateRequest:
		return f.marshal(string(KindInstantiate))
	case CreateSecretRequest, ResetRevelationTimestampRequest, DeleteSecretRequest,
		GetRevelationTimestampRequest, GetRevelationSetRequest, GetSecretValueRequest:
		return f.tagged(string(req.Kind()), r)
	default:
		return nil, fmt.Errorf("%w: unsupported request type %T", ErrBadRequest, req)
	}
}

// UnmarshalRequest decodes a request. Any structural problem, including an
// unknown tag, is reported as ErrBadRequest.
func (f WireFormat) UnmarshalRequest(data []byte) (Request, error) {
	tag, payload, err := f.split(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	kind := RequestKind(tag)
	if kind == KindInstantiate {
		if payload != nil {
			return nil, fmt.Errorf("%w: %s takes no payload", ErrBadRequest, kind)
		}
		return InstantiateRequest{}, nil
	}
	if payload == nil || f.isNull(payload) {
		return nil, fmt.Errorf("%w: request %q requires a payload", ErrBadRequest, tag)
	}

	var req Request
	switch kind {
	case KindCreateSecret:
		var r CreateSecretRequest
		err = f.unmarshal(payload, &r)
		req = r
	case KindResetRevelationTimestamp:
		var r ResetRevelationTimestampRequest
		err = f.unmarshal(payload, &r)
		req = r
	case KindDeleteSecret:
		var r DeleteSecretRequest
		err = f.unmarshal(payload, &r)
		req = r
	case KindGetRevelationTimestamp:
		var r GetRevelationTimestampRequest
		err = f.unmarshal(payload, &r)
		req = r
	case KindGetRevelationSet:
		var r GetRevelationSetRequest
		err = f.unmarshal(payload, &r)
		req = r
	case KindGetSecretValue:
		var r GetSecretValueRequest
		err = f.unmarshal(payload, &r)
		req = r
	default:
		return nil, fmt.Errorf("%w: unknown request %q", ErrBadRequest, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: malformed %s payload: %v", ErrBadRequest, kind, err)
	}
	return req, nil
}

// MarshalResponse encodes a successful response.
func (f WireFormat) MarshalResponse(resp Response) ([]byte, error) {
	switch r := resp.(type) {
	case EmptyResponse:
		return f.marshal(string(KindEmpty))
	case RevelationTimestampResponse:
		return f.tagged(string(KindRevelationTimestamp), r.Timestamp)
	case RevelationSetResponse:
		return f.tagged(string(KindRevelationSet), r.Set)
	case SecretValueResponse:
		return f.tagged(string(KindSecretValue), r.Value)
	default:
		return nil, fmt.Errorf("unsupported response type %T", resp)
	}
}

// MarshalError encodes a ContractError as {"error": {"code", "message"}}.
func (f WireFormat) MarshalError(ce *ContractError) ([]byte, error) {
	return f.tagged(errorTag, wireError{Code: ce.Code, Message: ce.Message})
}

// UnmarshalResponse decodes either a successful response or an error
// envelope. An error envelope is returned as the matching *ContractError.
func (f WireFormat) UnmarshalResponse(data []byte) (Response, error) {
	tag, payload, err := f.split(data)
	if err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	switch tag {
	case string(KindEmpty):
		return EmptyResponse{}, nil
	case errorTag:
		var we wireError
		if err := f.unmarshal(payload, &we); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		ce, err := ContractErrorFromCode(we.Code)
		if err != nil {
			return nil, err
		}
		return nil, ce
	case string(KindRevelationTimestamp):
		var ts uint64
		if err := f.unmarshal(payload, &ts); err != nil {
			return nil, fmt.Errorf("malformed %s response: %w", tag, err)
		}
		return RevelationTimestampResponse{Timestamp: ts}, nil
	case string(KindRevelationSet):
		var set RevelationSet
		if err := f.unmarshal(payload, &set); err != nil {
			return nil, fmt.Errorf("malformed %s response: %w", tag, err)
		}
		return RevelationSetResponse{Set: set}, nil
	case string(KindSecretValue):
		var value []byte
		if err := f.unmarshal(payload, &value); err != nil {
			return nil, fmt.Errorf("malformed %s response: %w", tag, err)
		}
		return SecretValueResponse{Value: value}, nil
	default:
		return nil, fmt.Errorf("unknown response %q", tag)
	}
}

// FormatForContentType selects the wire format from a Content-Type or Accept
// value, defaulting to JSON.
func FormatForContentType(contentType string) WireFormat {
	if strings.HasPrefix(contentType, CBORFormat.ContentType) {
		return CBORFormat
	}
	return JSONFormat
}
