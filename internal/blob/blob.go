// Package blob pins JSON documents to IPFS through a Pinata-style pinning
// API and reads them back through a gateway.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/devblac/bridge-relay/internal/config"
)

const (
	DefaultPinURL     = "https://api.pinata.cloud/pinning/pinJSONToIPFS"
	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs/"
)

// errTransient marks failures worth retrying: transport errors and 5xx.
var errTransient = errors.New("transient")

// Client talks to the pinning API and the gateway.
type Client struct {
	pinURL     string
	gatewayURL string
	apiKey     string
	apiSecret  string
	attempts   uint
	client     *http.Client
}

// New builds a client; empty URLs fall back to Pinata's public endpoints.
func New(cfg config.IPFS) *Client {
	c := &Client{
		pinURL:     cfg.PinURL,
		gatewayURL: cfg.GatewayURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		attempts:   3,
		client:     &http.Client{Timeout: 20 * time.Second},
	}
	if c.pinURL == "" {
		c.pinURL = DefaultPinURL
	}
	if c.gatewayURL == "" {
		c.gatewayURL = DefaultGatewayURL
	}
	if !strings.HasSuffix(c.gatewayURL, "/") {
		c.gatewayURL += "/"
	}
	return c
}

// Pin uploads data and returns its content identifier.
func (c *Client) Pin(ctx context.Context, data map[string]any) (string, error) {
	if data == nil {
		return "", errors.New("pin: data required")
	}
	if c.apiKey == "" || c.apiSecret == "" {
		return "", errors.New("pin: api key and secret required")
	}
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("pin: marshal: %w", err)
	}

	var out struct {
		IpfsHash string `json:"IpfsHash"`
	}
	err = c.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinURL, bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("pinata_api_key", c.apiKey)
		req.Header.Set("pinata_secret_api_key", c.apiSecret)
		raw, err := c.send(req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("pin: %w", err)
	}
	if out.IpfsHash == "" {
		return "", errors.New("pin: response carries no IpfsHash")
	}
	return out.IpfsHash, nil
}

// Fetch reads the JSON object stored under cid.
func (c *Client) Fetch(ctx context.Context, cid string) (map[string]any, error) {
	cid = strings.TrimPrefix(strings.TrimSpace(cid), "ipfs://")
	if cid == "" {
		return nil, errors.New("fetch: cid required")
	}
	return c.FetchURL(ctx, c.gatewayURL+cid)
}

// FetchURL reads a JSON object from an http(s) or ipfs:// URL.
func (c *Client) FetchURL(ctx context.Context, url string) (map[string]any, error) {
	url = c.Resolve(url)
	var out map[string]any
	err := c.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		raw, err := c.send(req)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return retry.Unrecoverable(fmt.Errorf("content is not a JSON object: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return out, nil
}

// Resolve rewrites ipfs:// URIs onto the gateway.
func (c *Client) Resolve(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return c.gatewayURL + strings.TrimPrefix(rest, "ipfs/")
	}
	return uri
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errTransient, err)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: http status %d: %s", errTransient, resp.StatusCode, snippet(raw))
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Unrecoverable(fmt.Errorf("http status %d: %s", resp.StatusCode, snippet(raw)))
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errTransient) }),
	)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
