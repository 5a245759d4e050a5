package clock

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/tee-vigil/interfaces"
)

// SystemClock reports wall clock Unix seconds.
type SystemClock struct{}

func (SystemClock) Now(ctx context.Context) (uint64, error) {
	now := time.Now().Unix()
	if now < 0 {
		return 0, fmt.Errorf("%w: system time %d is before the epoch", interfaces.ErrClockFault, now)
	}
	return uint64(now), nil
}

// HeaderReader is the subset of ethclient.Client used by ChainClock.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ChainClock reports the timestamp of the latest block.
type ChainClock struct {
	client HeaderReader
	log    *slog.Logger
}

func NewChainClock(client HeaderReader, log *slog.Logger) *ChainClock {
	return &ChainClock{client: client, log: log}
}

// DialChainClock connects to an RPC endpoint.
func DialChainClock(ctx context.Context, rpcURL string, log *slog.Logger) (*ChainClock, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return NewChainClock(client, log), nil
}

// Now returns the latest block timestamp. A missing header or a zero
// timestamp is a clock fault.
func (c *ChainClock) Now(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		c.log.Error("Failed to fetch latest block header", "err", err)
		return 0, fmt.Errorf("%w: %v", interfaces.ErrClockFault, err)
	}
	if header == nil || header.Time == 0 {
		return 0, fmt.Errorf("%w: latest block has no timestamp", interfaces.ErrClockFault)
	}

	c.log.Debug("Read chain time",
		slog.Any("block", header.Number),
		slog.Uint64("time", header.Time))
	return header.Time, nil
}

// FixedClock returns a settable constant. It is safe for concurrent use.
type FixedClock struct {
	now atomic.Uint64
}

func NewFixedClock(now uint64) *FixedClock {
	c := &FixedClock{}
	c.now.Store(now)
	return c
}

func (c *FixedClock) Now(ctx context.Context) (uint64, error) {
	return c.now.Load(), nil
}

// Set moves the clock to now.
func (c *FixedClock) Set(now uint64) {
	c.now.Store(now)
}

// Advance moves the clock forward by d seconds.
func (c *FixedClock) Advance(d uint64) {
	c.now.Add(d)
}
