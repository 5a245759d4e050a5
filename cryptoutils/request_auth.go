package cryptoutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ruteri/tee-vigil/interfaces"
)

const (
	// SignatureHeader carries the hex-encoded 65-byte request signature.
	SignatureHeader = "X-Vigil-Signature"
	// TimestampHeader carries the Unix time the request was signed at.
	TimestampHeader = "X-Vigil-Timestamp"
	// NonceHeader carries the signed nonce.
	NonceHeader = "X-Vigil-Nonce"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrStaleRequest     = errors.New("request timestamp outside the accepted window")
	ErrReplayedRequest  = errors.New("request signature already used")
)

// SignedRequest is the part of an HTTP request covered by its signature.
type SignedRequest struct {
	Method    string
	Path      string
	Timestamp int64
	// Nonce makes otherwise identical requests carry distinct signatures.
	Nonce string
	Body  []byte
}

// Digest is the hash a request signature commits to: keccak256 of the
// newline-joined method, path, timestamp, nonce and body.
func (r SignedRequest) Digest() []byte {
	return crypto.Keccak256(
		[]byte(r.Method), []byte("\n"),
		[]byte(r.Path), []byte("\n"),
		[]byte(strconv.FormatInt(r.Timestamp, 10)), []byte("\n"),
		[]byte(r.Nonce), []byte("\n"),
		r.Body,
	)
}

// NewNonce returns a fresh random nonce.
func NewNonce() string {
	return uuid.NewString()
}

// SignRequest signs a request with key and returns the hex signature.
func SignRequest(key *ecdsa.PrivateKey, req SignedRequest) (string, error) {
	sig, err := crypto.Sign(req.Digest(), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// RecoverCaller returns the identity that produced signature over req.
func RecoverCaller(signature string, req SignedRequest) (interfaces.Identity, error) {
	if signature == "" {
		return interfaces.Identity{}, ErrMissingSignature
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return interfaces.Identity{}, fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}

	// High-S signatures are rejected so each request has one valid encoding.
	r, s := new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return interfaces.Identity{}, fmt.Errorf("%w: non-canonical signature", ErrInvalidSignature)
	}

	pubkey, err := crypto.SigToPub(req.Digest(), sig)
	if err != nil {
		return interfaces.Identity{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return interfaces.IdentityFromAddress(crypto.PubkeyToAddress(*pubkey)), nil
}

// IdentityOf returns the identity controlled by key.
func IdentityOf(key *ecdsa.PrivateKey) interfaces.Identity {
	return interfaces.IdentityFromAddress(crypto.PubkeyToAddress(key.PublicKey))
}

// ParseTimestamp parses the TimestampHeader value.
func ParseTimestamp(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: missing timestamp", ErrStaleRequest)
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed timestamp", ErrStaleRequest)
	}
	return ts, nil
}

// ReplayGuard rejects stale timestamps and repeated signatures.
type ReplayGuard struct {
	maxSkew time.Duration
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]int64
}

func NewReplayGuard(maxSkew time.Duration) *ReplayGuard {
	return &ReplayGuard{
		maxSkew: maxSkew,
		now:     time.Now,
		seen:    make(map[string]int64),
	}
}

// Check accepts a signature once, provided timestamp is within maxSkew of
// the local time. Signatures are compared by their decoded bytes.
func (g *ReplayGuard) Check(timestamp int64, signature string) error {
	now := g.now()
	skew := time.Duration(now.Unix()-timestamp) * time.Second
	if skew > g.maxSkew || -skew > g.maxSkew {
		return fmt.Errorf("%w: skew %s", ErrStaleRequest, skew)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := replayKey(signature)
	g.prune(now)
	if _, ok := g.seen[key]; ok {
		return ErrReplayedRequest
	}
	g.seen[key] = timestamp
	return nil
}

// prune drops signatures whose timestamps can no longer pass the skew check.
func (g *ReplayGuard) prune(now time.Time) {
	horizon := now.Add(-g.maxSkew).Unix()
	for sig, ts := range g.seen {
		if ts < horizon {
			delete(g.seen, sig)
		}
	}
}

func replayKey(signature string) string {
	if sig, err := hexutil.Decode(signature); err == nil {
		return string(sig)
	}
	return strings.ToLower(signature)
}
