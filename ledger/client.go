package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the transaction is unknown to the indexer.
	ErrNotFound = errors.New("ledger: transaction not found")
	// ErrUnconfigured indicates the client has no project credentials.
	ErrUnconfigured = errors.New("ledger: project id not configured")
	// ErrUpstream indicates a non-2xx response or transport failure from the indexer.
	ErrUpstream = errors.New("ledger: upstream error")
)

// TxMetadata is one metadata entry attached to a transaction, as returned by
// the Blockfrost /txs/{hash}/metadata endpoint. JSONMetadata is untyped because
// on-chain payloads carry arbitrary shapes.
type TxMetadata struct {
	Label        string `json:"label"`
	JSONMetadata any    `json:"json_metadata"`
}

// Config represents the client configuration.
type Config struct {
	BaseURL   string
	ProjectID string
	Timeout   time.Duration
}

// Client is a thin wrapper over the Blockfrost transaction metadata endpoint.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
}

// NewClient constructs a metadata client targeting the supplied base URL.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		projectID: strings.TrimSpace(cfg.ProjectID),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchMetadata returns the metadata entries attached to the transaction.
// It fails with ErrNotFound when the transaction is unknown, ErrUnconfigured
// when no project id is set, and ErrUpstream for any other indexer failure.
func (c *Client) FetchMetadata(ctx context.Context, txHash string) ([]TxMetadata, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("ledger: client not configured")
	}
	if c.projectID == "" {
		return nil, ErrUnconfigured
	}
	hash := strings.TrimSpace(txHash)
	if hash == "" {
		return nil, fmt.Errorf("ledger: tx hash required")
	}

	url := fmt.Sprintf("%s/txs/%s/metadata", c.baseURL, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("project_id", c.projectID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	var entries []TxMetadata
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return entries, nil
}

var _ interface {
	FetchMetadata(context.Context, string) ([]TxMetadata, error)
} = (*Client)(nil)
