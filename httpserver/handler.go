package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/ruteri/tee-vigil/cryptoutils"
	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/ruteri/tee-vigil/registry"
)

const (
	// RequestIDHeader echoes the identifier the request was logged under.
	RequestIDHeader = "X-Request-Id"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Handler exposes the dispatcher entrypoints over HTTP.
//
// Requests carrying a caller (instantiate, call, query) must be signed; see
// cryptoutils.SignRequest. Bodies are tagged requests in JSON or CBOR,
// selected by Content-Type. Responses use the format named by Accept,
// falling back to the request's format.
type Handler struct {
	dispatcher *registry.Dispatcher
	guard      *cryptoutils.ReplayGuard
	log        *slog.Logger
}

// NewHandler creates a new HTTP request handler.
func NewHandler(dispatcher *registry.Dispatcher, guard *cryptoutils.ReplayGuard, log *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		guard:      guard,
		log:        log,
	}
}

// HandleInstantiate serves POST /api/v1/instantiate.
func (h *Handler) HandleInstantiate(w http.ResponseWriter, r *http.Request) {
	h.serveSigned(w, r, h.dispatcher.Instantiate)
}

// HandleCall serves POST /api/v1/call.
func (h *Handler) HandleCall(w http.ResponseWriter, r *http.Request) {
	h.serveSigned(w, r, h.dispatcher.Call)
}

// HandleQuery serves POST /api/v1/query.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	h.serveSigned(w, r, h.dispatcher.Query)
}

// HandleReply serves POST /api/v1/reply. The body is passed through
// undecoded.
func (h *Handler) HandleReply(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(w, r)

	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, log, err)
		return
	}

	resp, err := h.dispatcher.HandleReply(r.Context(), body)
	h.writeResult(w, r, log, resp, err)
}

// HandlePreUpgrade serves POST /api/v1/upgrade/pre.
func (h *Handler) HandlePreUpgrade(w http.ResponseWriter, r *http.Request) {
	h.serveUpgrade(w, r, h.dispatcher.PreUpgrade)
}

// HandlePostUpgrade serves POST /api/v1/upgrade/post.
func (h *Handler) HandlePostUpgrade(w http.ResponseWriter, r *http.Request) {
	h.serveUpgrade(w, r, h.dispatcher.PostUpgrade)
}

// Available reports whether the registry store can serve requests.
func (h *Handler) Available(ctx context.Context) bool {
	return h.dispatcher.Available(ctx)
}

type signedEntrypoint func(ctx context.Context, caller interfaces.Identity, req interfaces.Request) (interfaces.Response, error)

func (h *Handler) serveSigned(w http.ResponseWriter, r *http.Request, entrypoint signedEntrypoint) {
	log := h.requestLogger(w, r)

	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, log, err)
		return
	}

	caller, err := h.authenticate(r, body)
	if err != nil {
		h.writeError(w, r, log, err)
		return
	}
	log = log.With(slog.String("caller", caller.String()))

	req, err := interfaces.FormatForContentType(r.Header.Get("Content-Type")).UnmarshalRequest(body)
	if err != nil {
		h.writeResult(w, r, log, nil, err)
		return
	}

	resp, err := entrypoint(r.Context(), caller, req)
	h.writeResult(w, r, log, resp, err)
}

func (h *Handler) serveUpgrade(w http.ResponseWriter, r *http.Request, hook func(context.Context, interfaces.Request) error) {
	log := h.requestLogger(w, r)

	// The payload does not influence the outcome; an undecodable one is
	// passed on as nil.
	var req interfaces.Request
	if body, err := readBody(w, r); err == nil {
		req, _ = interfaces.FormatForContentType(r.Header.Get("Content-Type")).UnmarshalRequest(body)
	}

	h.writeResult(w, r, log, nil, hook(r.Context(), req))
}

// authenticate recovers the caller from the request signature and rejects
// stale or replayed signatures.
func (h *Handler) authenticate(r *http.Request, body []byte) (interfaces.Identity, error) {
	signature := r.Header.Get(cryptoutils.SignatureHeader)

	timestamp, err := cryptoutils.ParseTimestamp(r.Header.Get(cryptoutils.TimestampHeader))
	if err != nil {
		return interfaces.Identity{}, &RequestError{StatusCode: http.StatusUnauthorized, Err: err}
	}

	caller, err := cryptoutils.RecoverCaller(signature, cryptoutils.SignedRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		Timestamp: timestamp,
		Nonce:     r.Header.Get(cryptoutils.NonceHeader),
		Body:      body,
	})
	if err != nil {
		return interfaces.Identity{}, &RequestError{StatusCode: http.StatusUnauthorized, Err: err}
	}

	if err := h.guard.Check(timestamp, signature); err != nil {
		return interfaces.Identity{}, &RequestError{StatusCode: http.StatusUnauthorized, Err: err}
	}
	return caller, nil
}

func (h *Handler) requestLogger(w http.ResponseWriter, r *http.Request) *slog.Logger {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return h.log.With(slog.String("request_id", id), slog.String("path", r.URL.Path))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: err}
		}
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return body, nil
}

// responseFormat picks the encoding of the response body.
func responseFormat(r *http.Request) interfaces.WireFormat {
	if accept := r.Header.Get("Accept"); strings.HasPrefix(accept, "application/") {
		return interfaces.FormatForContentType(accept)
	}
	return interfaces.FormatForContentType(r.Header.Get("Content-Type"))
}

// StatusCode maps an entrypoint error to its HTTP status.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}

	ce, ok := interfaces.AsContractError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(ce, interfaces.ErrUpgradeNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(ce, interfaces.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(ce, interfaces.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(ce, interfaces.ErrSecretDoesntExist):
		return http.StatusNotFound
	case errors.Is(ce, interfaces.ErrSecretAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, log *slog.Logger, resp interfaces.Response, err error) {
	if err != nil {
		h.writeError(w, r, log, err)
		return
	}

	format := responseFormat(r)
	data, err := format.MarshalResponse(resp)
	if err != nil {
		log.Error("Failed to encode response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writeError sends contract errors as a tagged error envelope and everything
// else as plain text.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := StatusCode(err)

	ce, ok := interfaces.AsContractError(err)
	if !ok {
		if status == http.StatusInternalServerError {
			log.Error("Request failed", "err", err)
			http.Error(w, "Internal server error", status)
			return
		}
		log.Debug("Request rejected", slog.Int("status", status), "err", err)
		http.Error(w, err.Error(), status)
		return
	}

	format := responseFormat(r)
	data, encErr := format.MarshalError(ce)
	if encErr != nil {
		log.Error("Failed to encode error response", "err", encErr)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType)
	w.WriteHeader(status)
	w.Write(data)
}
