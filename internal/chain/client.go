package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/wnt/health-to-earn/internal/logger"
	"github.com/wnt/health-to-earn/internal/metrics"
)

// ErrAnnounce marks a submit failure after the retry budget ran out.
// Callers treat it as retryable on a later payout round.
var ErrAnnounce = errors.New("chain: transaction announce failed")

const (
	announceRetries   = 4
	announceBaseDelay = 500 * time.Millisecond
	announceMaxDelay  = 10 * time.Second
)

type announcePayload struct {
	Payload string `json:"payload"`
}

type announceResponse struct {
	Message string `json:"message"`
}

// AnnounceResult reports which node accepted the transaction.
type AnnounceResult struct {
	Node    string
	Message string
}

// Client announces signed transactions to the dHealth REST gateway
// with retries and backoff across the node pool.
type Client struct {
	pool    *NodePool
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates an announce client over the pool. The rate limiter
// keeps announce bursts from hammering public nodes.
func NewClient(pool *NodePool, logger zerolog.Logger) *Client {
	return &Client{
		pool: pool,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		logger:  logger.With().Str("component", "chain_client").Logger(),
	}
}

// Announce submits the signed payload, retrying across nodes with
// exponential backoff until the budget is spent.
func (c *Client) Announce(ctx context.Context, tx *SignedTransaction) (*AnnounceResult, error) {
	var lastErr error
	for attempt := 0; attempt <= announceRetries; attempt++ {
		res, err := c.announceOnce(ctx, tx)
		if err == nil {
			metrics.RecordAnnounce("success")
			return res, nil
		}
		lastErr = err

		c.logger.Warn().
			Err(err).
			Str("tx_hash", tx.HashHex()).
			Int("attempt", attempt+1).
			Int("max_retries", announceRetries).
			Msg("Failed to announce transaction")

		if attempt == announceRetries {
			break
		}

		delay := announceBaseDelay * time.Duration(1<<attempt)
		if delay > announceMaxDelay {
			delay = announceMaxDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			metrics.RecordAnnounce("cancelled")
			return nil, ctx.Err()
		}
	}

	metrics.RecordAnnounce("failed")
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrAnnounce, announceRetries+1, lastErr)
}

func (c *Client) announceOnce(ctx context.Context, tx *SignedTransaction) (*AnnounceResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	node := c.pool.Pick()
	body, err := json.Marshal(announcePayload{Payload: tx.PayloadHex()})
	if err != nil {
		return nil, fmt.Errorf("marshal announce payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, node+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create announce request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.pool.MarkUnhealthy(node)
		return nil, fmt.Errorf("announce to %s: %w", node, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		c.pool.MarkUnhealthy(node)
		return nil, fmt.Errorf("read announce response from %s: %w", node, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.pool.MarkUnhealthy(node)
		return nil, fmt.Errorf("announce to %s: status %d: %s", node, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var parsed announceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// The gateway accepted the payload; a malformed body is not
		// worth failing the payout over.
		nodeLog := logger.WithNode(c.logger, node)
		nodeLog.Debug().Msg("Announce response body did not parse")
	}

	c.pool.MarkHealthy(node)
	metrics.SetNodesHealthy(c.pool.HealthyCount())
	return &AnnounceResult{Node: node, Message: parsed.Message}, nil
}
