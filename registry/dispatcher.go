package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ruteri/tee-vigil/interfaces"
)

// Entrypoints of the dispatcher, used as log and metric labels.
const (
	EntrypointInstantiate = "instantiate"
	EntrypointCall        = "call"
	EntrypointQuery       = "query"
	EntrypointReply       = "reply"
	EntrypointPreUpgrade  = "pre_upgrade"
	EntrypointPostUpgrade = "post_upgrade"
)

// RequestObserver receives the outcome of every dispatched request.
type RequestObserver interface {
	ObserveRequest(entrypoint, kind, outcome string, duration time.Duration)
}

// Dispatcher maps tagged requests onto registry operations. It holds no
// state of its own; every call runs in a transaction of the store.
type Dispatcher struct {
	store    interfaces.TransactionalStore
	clock    interfaces.Clock
	log      *slog.Logger
	observer RequestObserver
}

func NewDispatcher(store interfaces.TransactionalStore, clock interfaces.Clock, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store: store,
		clock: clock,
		log:   log,
	}
}

// SetObserver registers an observer for request outcomes.
func (d *Dispatcher) SetObserver(observer RequestObserver) {
	d.observer = observer
}

// Available reports whether the underlying store can serve requests.
func (d *Dispatcher) Available(ctx context.Context) bool {
	return d.store.Available(ctx)
}

// Instantiate accepts only the instantiate marker.
func (d *Dispatcher) Instantiate(ctx context.Context, caller interfaces.Identity, req interfaces.Request) (interfaces.Response, error) {
	start := time.Now()
	var err error
	if _, ok := req.(interfaces.InstantiateRequest); !ok {
		err = interfaces.ErrBadRequest
	}
	d.observe(EntrypointInstantiate, requestKind(req), start, err)
	if err != nil {
		return nil, err
	}

	d.log.Info("Instantiated", slog.String("caller", caller.String()))
	return interfaces.EmptyResponse{}, nil
}

// Call executes one of the six registry operations as caller. Writes run
// in a read-write transaction, reads in a read-only one.
func (d *Dispatcher) Call(ctx context.Context, caller interfaces.Identity, req interfaces.Request) (interfaces.Response, error) {
	start := time.Now()
	resp, err := d.call(ctx, caller, req)
	d.observe(EntrypointCall, requestKind(req), start, err)

	if err != nil {
		if _, ok := interfaces.AsContractError(err); ok {
			d.log.Debug("Request rejected",
				slog.String("kind", requestKind(req)),
				slog.String("caller", caller.String()),
				"err", err)
		} else {
			d.log.Error("Request failed",
				slog.String("kind", requestKind(req)),
				slog.String("caller", caller.String()),
				"err", err)
		}
		return nil, err
	}
	return resp, nil
}

func (d *Dispatcher) call(ctx context.Context, caller interfaces.Identity, req interfaces.Request) (interfaces.Response, error) {
	run := d.store.Update
	switch req.(type) {
	case interfaces.CreateSecretRequest, interfaces.ResetRevelationTimestampRequest, interfaces.DeleteSecretRequest:
	case interfaces.GetRevelationTimestampRequest, interfaces.GetRevelationSetRequest, interfaces.GetSecretValueRequest:
		run = d.store.View
	default:
		return nil, interfaces.ErrBadRequest
	}

	var resp interfaces.Response
	err := run(ctx, func(store interfaces.SecretStore) error {
		var err error
		resp, err = NewSecretRegistry(Env{
			Caller: caller,
			Store:  store,
			Clock:  d.clock,
		}, d.log).Execute(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Query always fails; reads are served through Call.
func (d *Dispatcher) Query(ctx context.Context, caller interfaces.Identity, req interfaces.Request) (interfaces.Response, error) {
	d.observe(EntrypointQuery, requestKind(req), time.Now(), interfaces.ErrBadRequest)
	return nil, interfaces.ErrBadRequest
}

// HandleReply always fails; the registry never makes outbound calls.
func (d *Dispatcher) HandleReply(ctx context.Context, reply []byte) (interfaces.Response, error) {
	d.observe(EntrypointReply, "", time.Now(), interfaces.ErrBadRequest)
	return nil, interfaces.ErrBadRequest
}

// PreUpgrade always fails; the registry is not upgradeable.
func (d *Dispatcher) PreUpgrade(ctx context.Context, req interfaces.Request) error {
	d.observe(EntrypointPreUpgrade, requestKind(req), time.Now(), interfaces.ErrUpgradeNotAllowed)
	return interfaces.ErrUpgradeNotAllowed
}

// PostUpgrade always fails; the registry is not upgradeable.
func (d *Dispatcher) PostUpgrade(ctx context.Context, req interfaces.Request) error {
	d.observe(EntrypointPostUpgrade, requestKind(req), time.Now(), interfaces.ErrUpgradeNotAllowed)
	return interfaces.ErrUpgradeNotAllowed
}

func (d *Dispatcher) observe(entrypoint, kind string, start time.Time, err error) {
	if d.observer == nil {
		return
	}
	d.observer.ObserveRequest(entrypoint, kind, Outcome(err), time.Since(start))
}

func requestKind(req interfaces.Request) string {
	if req == nil {
		return ""
	}
	return string(req.Kind())
}

// Outcome labels an operation result: "ok", the snake_case name of a
// contract error kind, or "fault" for environment failures.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	ce, ok := interfaces.AsContractError(err)
	if !ok {
		return "fault"
	}
	switch {
	case errors.Is(ce, interfaces.ErrUpgradeNotAllowed):
		return "upgrade_not_allowed"
	case errors.Is(ce, interfaces.ErrBadRequest):
		return "bad_request"
	case errors.Is(ce, interfaces.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(ce, interfaces.ErrSecretDoesntExist):
		return "secret_doesnt_exist"
	case errors.Is(ce, interfaces.ErrSecretAlreadyExists):
		return "secret_already_exists"
	default:
		return "fault"
	}
}
