// Package tee talks to the Confidential Space launcher over its local unix
// socket to fetch attestation tokens.
package tee

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"notary/internal/logger"
)

const (
	tokenPath      = "/v1/token"
	requestTimeout = 10 * time.Second
)

// Client fetches tokens from the launcher's attestation endpoint. The
// launcher only listens on a unix socket inside the enclave, so the HTTP
// transport dials that socket regardless of the request URL host.
type Client struct {
	socketPath string
	httpc      *http.Client
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpc: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

type tokenRequest struct {
	Audience  string   `json:"audience"`
	TokenType string   `json:"token_type"`
	Nonces    []string `json:"nonces,omitempty"`
}

// GetToken requests a token with the nonces bound into its eat_nonce claim.
func (c *Client) GetToken(ctx context.Context, nonces [][]byte, audience, tokenType string) (string, error) {
	encoded := make([]string, 0, len(nonces))
	for _, n := range nonces {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(n))
	}
	body, err := json.Marshal(tokenRequest{
		Audience:  audience,
		TokenType: tokenType,
		Nonces:    encoded,
	})
	if err != nil {
		return "", fmt.Errorf("tee: encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://localhost"+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("tee: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("tee: launcher unreachable at %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("tee: read token response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("tee: launcher status=%d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("tee: launcher returned empty token")
	}
	logger.Debugf("tee: token fetched, audience=%s nonces=%d", audience, len(nonces))
	return token, nil
}

// SimulatedProvider stands in for the launcher outside an enclave. It never
// produces verifiable evidence and always errors, which lets the caller's
// simulation path substitute its sentinel token through one code path.
type SimulatedProvider struct{}

func (SimulatedProvider) GetToken(context.Context, [][]byte, string, string) (string, error) {
	return "", fmt.Errorf("tee: no enclave launcher in simulation mode")
}
