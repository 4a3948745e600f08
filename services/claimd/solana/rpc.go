package solana

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"airdrop/crypto"
)

// Client is a minimal JSON-RPC client for the ledger node.
type Client struct {
	rpc        *rpc.Client
	commitment string
}

// ClientOption customises the RPC client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
	commitment string
	headers    http.Header
}

// WithHTTPClient overrides the transport used for RPC calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) { cfg.httpClient = c }
}

// WithCommitment selects the commitment level used for reads. Defaults to "confirmed".
func WithCommitment(level string) ClientOption {
	return func(cfg *clientConfig) {
		if trimmed := strings.TrimSpace(level); trimmed != "" {
			cfg.commitment = trimmed
		}
	}
}

// WithHeader adds a header to every request, for providers that authenticate that way.
func WithHeader(key, value string) ClientOption {
	return func(cfg *clientConfig) { cfg.headers.Set(key, value) }
}

// Dial prepares a client for endpoint. No connection is made until the first call.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("solana rpc endpoint required")
	}
	cfg := clientConfig{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		commitment: "confirmed",
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	dialOpts := []rpc.ClientOption{rpc.WithHTTPClient(cfg.httpClient)}
	if len(cfg.headers) > 0 {
		dialOpts = append(dialOpts, rpc.WithHeaders(cfg.headers))
	}
	client, err := rpc.DialOptions(ctx, endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial solana rpc: %w", err)
	}
	return &Client{rpc: client, commitment: cfg.commitment}, nil
}

// Close releases the underlying client.
func (c *Client) Close() {
	if c != nil && c.rpc != nil {
		c.rpc.Close()
	}
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type latestBlockhashResult struct {
	Context rpcContext `json:"context"`
	Value   struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// Blockhash is a recent blockhash and the last block height at which it is valid.
type Blockhash struct {
	Hash                 crypto.PublicKey
	LastValidBlockHeight uint64
}

// LatestBlockhash fetches the most recent blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	var result latestBlockhashResult
	if err := c.rpc.CallContext(ctx, &result, "getLatestBlockhash", map[string]any{"commitment": c.commitment}); err != nil {
		return Blockhash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	hash, err := crypto.DecodeAddress(result.Value.Blockhash)
	if err != nil {
		return Blockhash{}, fmt.Errorf("getLatestBlockhash: invalid blockhash %q: %w", result.Value.Blockhash, err)
	}
	return Blockhash{Hash: hash, LastValidBlockHeight: result.Value.LastValidBlockHeight}, nil
}

// AccountInfo is the subset of account state the builder inspects.
type AccountInfo struct {
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
	Data     []string `json:"data"`
}

type accountInfoResult struct {
	Context rpcContext   `json:"context"`
	Value   *AccountInfo `json:"value"`
}

// AccountInfo returns nil without error when the account does not exist.
func (c *Client) AccountInfo(ctx context.Context, account crypto.PublicKey) (*AccountInfo, error) {
	var result accountInfoResult
	params := map[string]any{"commitment": c.commitment, "encoding": "base64"}
	if err := c.rpc.CallContext(ctx, &result, "getAccountInfo", account.String(), params); err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", account, err)
	}
	return result.Value, nil
}
