// Package duum posts OCR proposals to Duum Core.
package duum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"duumgate/internal/models"
)

// ProposalsPath is the Duum Core endpoint that accepts proposals.
const ProposalsPath = "/wp-json/duum/v1/proposals"

// TokenHeader carries the shared secret checked by Duum Core.
const TokenHeader = "X-Duum-Token"

// ErrNotConfigured is returned when the base URL or token is missing.
var ErrNotConfigured = errors.New("Missing DUUM_WP_BASE or DUUM_WP_TOKEN")

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewClient(baseURL, token string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		httpc:   httpc,
	}
}

// PostProposal stores a proposal and returns Duum Core's decoded reply. A
// success body that is not JSON comes back as {"raw": body}.
func (c *Client) PostProposal(ctx context.Context, p models.Proposal) (any, error) {
	if c.baseURL == "" || c.token == "" {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode proposal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ProposalsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, c.token)

	reqID := uuid.NewString()
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		log.Printf("duum: proposal %s failed: %v", reqID, err)
		return nil, fmt.Errorf("Duum proposal POST failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read Duum response: %w", err)
	}
	log.Printf("duum: proposal %s status=%d elapsed=%s", reqID, resp.StatusCode, time.Since(start))

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("Duum proposal POST failed (%d): %s", resp.StatusCode, truncate(string(raw), 500))
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"raw": string(raw)}, nil
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
