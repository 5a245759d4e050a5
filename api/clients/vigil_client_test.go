package clients

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-vigil/clock"
	"github.com/ruteri/tee-vigil/cryptoutils"
	"github.com/ruteri/tee-vigil/httpserver"
	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/ruteri/tee-vigil/registry"
	"github.com/ruteri/tee-vigil/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNow uint64 = 1_700_000_000

func newTestServer(t *testing.T) (*httptest.Server, *clock.FixedClock) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	fixed := clock.NewFixedClock(testNow)
	dispatcher := registry.NewDispatcher(storage.NewTxStore(storage.NewMemoryBackend(), log), fixed, log)
	handler := httpserver.NewHandler(dispatcher, cryptoutils.NewReplayGuard(time.Minute), log)

	mux := chi.NewRouter()
	mux.Post(InstantiatePath, handler.HandleInstantiate)
	mux.Post(CallPath, handler.HandleCall)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, fixed
}

func newClient(t *testing.T, addr string) *VigilClient {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewVigilClient(addr, key)
}

func TestVigilClient_DeadMansSwitch(t *testing.T) {
	for _, format := range []interfaces.WireFormat{interfaces.JSONFormat, interfaces.CBORFormat} {
		t.Run(format.Name, func(t *testing.T) {
			srv, fixed := newTestServer(t)
			ctx := context.Background()

			owner := newClient(t, srv.URL)
			beneficiary := newClient(t, srv.URL)
			stranger := newClient(t, srv.URL)
			for _, c := range []*VigilClient{owner, beneficiary, stranger} {
				c.Format = format
			}

			require.NoError(t, owner.Instantiate(ctx))

			set := interfaces.Entities(beneficiary.Identity())
			require.NoError(t, owner.CreateSecret(ctx, "will", []byte("secret"), set, testNow+60))

			err := owner.CreateSecret(ctx, "will", []byte("other"), set, testNow)
			assert.ErrorIs(t, err, interfaces.ErrSecretAlreadyExists)

			got, err := owner.GetRevelationSet(ctx, "will")
			require.NoError(t, err)
			assert.True(t, got.Equal(set))

			_, err = beneficiary.GetSecretValue(ctx, owner.Identity(), "will")
			assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)

			require.NoError(t, owner.ResetRevelationTimestamp(ctx, "will", testNow+120))
			ts, err := beneficiary.GetRevelationTimestamp(ctx, owner.Identity(), "will")
			require.NoError(t, err)
			assert.Equal(t, testNow+120, ts)

			fixed.Advance(120)

			value, err := beneficiary.GetSecretValue(ctx, owner.Identity(), "will")
			require.NoError(t, err)
			assert.Equal(t, []byte("secret"), value)

			_, err = stranger.GetSecretValue(ctx, owner.Identity(), "will")
			assert.ErrorIs(t, err, interfaces.ErrPermissionDenied)

			require.NoError(t, owner.DeleteSecret(ctx, "will"))
			require.NoError(t, owner.DeleteSecret(ctx, "will"))

			_, err = owner.GetSecretValue(ctx, owner.Identity(), "will")
			assert.ErrorIs(t, err, interfaces.ErrSecretDoesntExist)
		})
	}
}

func TestVigilClient_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL+"/")
	err := client.DeleteSecret(context.Background(), "will")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	_, ok := interfaces.AsContractError(err)
	assert.False(t, ok)
}
