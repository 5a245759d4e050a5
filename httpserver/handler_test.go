package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-vigil/clock"
	"github.com/ruteri/tee-vigil/cryptoutils"
	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/ruteri/tee-vigil/registry"
	"github.com/ruteri/tee-vigil/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNow uint64 = 1_700_000_000

type testServer struct {
	router  http.Handler
	clock   *clock.FixedClock
	backend *storage.MemoryBackend
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend := storage.NewMemoryBackend()
	fixed := clock.NewFixedClock(testNow)
	dispatcher := registry.NewDispatcher(storage.NewTxStore(backend, log), fixed, log)
	handler := NewHandler(dispatcher, cryptoutils.NewReplayGuard(time.Minute), log)

	mux := chi.NewRouter()
	mux.Post("/api/v1/instantiate", handler.HandleInstantiate)
	mux.Post("/api/v1/call", handler.HandleCall)
	mux.Post("/api/v1/query", handler.HandleQuery)
	mux.Post("/api/v1/reply", handler.HandleReply)
	mux.Post("/api/v1/upgrade/pre", handler.HandlePreUpgrade)
	mux.Post("/api/v1/upgrade/post", handler.HandlePostUpgrade)

	return &testServer{router: mux, clock: fixed, backend: backend}
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func signedRequest(t *testing.T, key *ecdsa.PrivateKey, path string, body []byte) *http.Request {
	t.Helper()
	return signedRequestAt(t, key, path, body, time.Now().Unix())
}

func signedRequestAt(t *testing.T, key *ecdsa.PrivateKey, path string, body []byte, ts int64) *http.Request {
	t.Helper()
	nonce := cryptoutils.NewNonce()
	sig, err := cryptoutils.SignRequest(key, cryptoutils.SignedRequest{
		Method:    http.MethodPost,
		Path:      path,
		Timestamp: ts,
		Nonce:     nonce,
		Body:      body,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(cryptoutils.SignatureHeader, sig)
	req.Header.Set(cryptoutils.TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(cryptoutils.NonceHeader, nonce)
	return req
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) call(t *testing.T, key *ecdsa.PrivateKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(signedRequest(t, key, "/api/v1/call", []byte(body)))
}

func TestHandleInstantiate(t *testing.T) {
	s := newTestServer(t)
	key := newKey(t)

	w := s.do(signedRequest(t, key, "/api/v1/instantiate", []byte(`"instantiate"`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"empty"`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = s.do(signedRequest(t, key, "/api/v1/instantiate", []byte(`{"delete_secret":{"name":"will"}}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"code":1,"message":"bad request"}}`, w.Body.String())
}

func TestHandleCall_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := newKey(t)
	beneficiary := newKey(t)
	stranger := newKey(t)

	ownerAddr := cryptoutils.IdentityOf(owner).String()
	create := `{"create_secret":{"name":"will","value":"c2VjcmV0","revelation_set":{"entities":["` +
		cryptoutils.IdentityOf(beneficiary).String() + `"]},"revelation_timestamp":` +
		strconv.FormatUint(testNow+100, 10) + `}}`

	w := s.call(t, owner, create)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `"empty"`, w.Body.String())

	w = s.call(t, owner, create)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":{"code":4,"message":"the secret already exists"}}`, w.Body.String())

	getValue := `{"get_secret_value":{"owner":"` + ownerAddr + `","name":"will"}}`

	w = s.call(t, owner, getValue)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"secret_value":"c2VjcmV0"}`, w.Body.String())

	w = s.call(t, beneficiary, getValue)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.call(t, stranger, getValue)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.call(t, beneficiary, `{"get_revelation_timestamp":{"owner":"`+ownerAddr+`","name":"will"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revelation_timestamp":`+strconv.FormatUint(testNow+100, 10)+`}`, w.Body.String())

	s.clock.Advance(100)

	w = s.call(t, beneficiary, getValue)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"secret_value":"c2VjcmV0"}`, w.Body.String())

	w = s.call(t, owner, `{"delete_secret":{"name":"will"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.backend.Len())

	w = s.call(t, owner, `{"get_revelation_set":{"name":"will"}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":{"code":3,"message":"the secret doesn't exist"}}`, w.Body.String())
}

func TestHandleCall_CBOR(t *testing.T) {
	s := newTestServer(t)
	key := newKey(t)

	body, err := interfaces.CBORFormat.MarshalRequest(interfaces.CreateSecretRequest{
		Name:                "will",
		Value:               []byte{0xde, 0xad},
		RevelationSet:       interfaces.Anyone(),
		RevelationTimestamp: testNow,
	})
	require.NoError(t, err)

	req := signedRequest(t, key, "/api/v1/call", body)
	req.Header.Set("Content-Type", "application/cbor")
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/cbor", w.Header().Get("Content-Type"))

	body, err = interfaces.CBORFormat.MarshalRequest(interfaces.GetRevelationSetRequest{Name: "will"})
	require.NoError(t, err)
	req = signedRequest(t, key, "/api/v1/call", body)
	req.Header.Set("Content-Type", "application/cbor")
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	resp, err := interfaces.CBORFormat.UnmarshalResponse(w.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, resp.(interfaces.RevelationSetResponse).Set.IsAnyone())

	// Accept overrides the request encoding
	body, err = interfaces.CBORFormat.MarshalRequest(interfaces.GetRevelationTimestampRequest{
		Owner: cryptoutils.IdentityOf(key),
		Name:  "will",
	})
	require.NoError(t, err)
	req = signedRequest(t, key, "/api/v1/call", body)
	req.Header.Set("Content-Type", "application/cbor")
	req.Header.Set("Accept", "application/json")
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revelation_timestamp":`+strconv.FormatUint(testNow, 10)+`}`, w.Body.String())
}

func TestHandleCall_BadRequests(t *testing.T) {
	s := newTestServer(t)
	key := newKey(t)

	for name, body := range map[string]string{
		"unknown variant": `{"rename_secret":{"name":"will"}}`,
		"instantiate":     `"instantiate"`,
		"not json":        `{`,
	} {
		t.Run(name, func(t *testing.T) {
			w := s.call(t, key, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":{"code":1,"message":"bad request"}}`, w.Body.String())
		})
	}
}

func TestHandleCall_Authentication(t *testing.T) {
	s := newTestServer(t)
	key := newKey(t)
	body := []byte(`{"get_revelation_set":{"name":"will"}}`)

	t.Run("missing signature", func(t *testing.T) {
		req := signedRequest(t, key, "/api/v1/call", body)
		req.Header.Del(cryptoutils.SignatureHeader)
		assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		req := signedRequest(t, key, "/api/v1/call", body)
		req.Header.Del(cryptoutils.TimestampHeader)
		assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)
	})

	t.Run("malformed signature", func(t *testing.T) {
		req := signedRequest(t, key, "/api/v1/call", body)
		req.Header.Set(cryptoutils.SignatureHeader, "0x1234")
		assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		req := signedRequestAt(t, key, "/api/v1/call", body, time.Now().Add(-time.Hour).Unix())
		assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)
	})

	t.Run("replayed signature", func(t *testing.T) {
		req := signedRequest(t, key, "/api/v1/call", body)
		replay := httptest.NewRequest(http.MethodPost, "/api/v1/call", bytes.NewReader(body))
		replay.Header = req.Header.Clone()

		assert.Equal(t, http.StatusNotFound, s.do(req).Code)
		assert.Equal(t, http.StatusUnauthorized, s.do(replay).Code)
	})

	t.Run("replayed signature with different hex case", func(t *testing.T) {
		req := signedRequest(t, key, "/api/v1/call", body)
		replay := httptest.NewRequest(http.MethodPost, "/api/v1/call", bytes.NewReader(body))
		replay.Header = req.Header.Clone()
		sig := req.Header.Get(cryptoutils.SignatureHeader)
		replay.Header.Set(cryptoutils.SignatureHeader, "0x"+strings.ToUpper(sig[2:]))

		assert.Equal(t, http.StatusNotFound, s.do(req).Code)
		assert.Equal(t, http.StatusUnauthorized, s.do(replay).Code)
	})

	t.Run("tampered body acts as another caller", func(t *testing.T) {
		create := []byte(`{"create_secret":{"name":"mine","value":"","revelation_set":"anyone","revelation_timestamp":1}}`)
		require.Equal(t, http.StatusOK, s.do(signedRequest(t, key, "/api/v1/call", create)).Code)

		req := signedRequest(t, key, "/api/v1/call", []byte(`{"get_revelation_set":{"name":"mine"}}`))
		tampered := httptest.NewRequest(http.MethodPost, "/api/v1/call",
			bytes.NewReader([]byte(`{"get_revelation_set":{"name":"mine" }}`)))
		tampered.Header = req.Header.Clone()

		// The recovered identity differs from the owner, so the read is scoped
		// to a caller without secrets.
		assert.Equal(t, http.StatusNotFound, s.do(tampered).Code)
	})
}

func TestHandleQueryAndReply(t *testing.T) {
	s := newTestServer(t)
	key := newKey(t)

	w := s.do(signedRequest(t, key, "/api/v1/query", []byte(`{"get_revelation_set":{"name":"will"}}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(httptest.NewRequest(http.MethodPost, "/api/v1/reply", bytes.NewReader([]byte{1, 2, 3})))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"code":1,"message":"bad request"}}`, w.Body.String())
}

func TestHandleUpgrade(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/upgrade/pre", "/api/v1/upgrade/post"} {
		for _, body := range []string{`"instantiate"`, `garbage`, ``} {
			w := s.do(httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body))))
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
			assert.JSONEq(t, `{"error":{"code":0,"message":"the contract is not upgradeable"}}`, w.Body.String())
		}
	}
}

func TestHandleCall_BodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	key := newKey(t)

	w := s.do(signedRequest(t, key, "/api/v1/call", bytes.Repeat([]byte{'a'}, maxBodySize+1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{interfaces.ErrUpgradeNotAllowed, http.StatusMethodNotAllowed},
		{interfaces.ErrBadRequest, http.StatusBadRequest},
		{interfaces.ErrPermissionDenied, http.StatusForbidden},
		{interfaces.ErrSecretDoesntExist, http.StatusNotFound},
		{interfaces.ErrSecretAlreadyExists, http.StatusConflict},
		{interfaces.ErrClockFault, http.StatusInternalServerError},
		{&RequestError{StatusCode: http.StatusUnauthorized, Err: cryptoutils.ErrInvalidSignature}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, StatusCode(tt.err))
		})
	}
}
