// Package chain fetches announcement records from a CosmWasm contract via an
// LCD smart-query endpoint.
package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"annobot/pkg/logx"
)

// ErrNoContract is returned when no contract address is configured.
// It is surfaced at query time so the process keeps running and picks up the
// contract once configuration is fixed.
var ErrNoContract = errors.New("no announcement contract set")

type Client struct {
	lcdURL string
	http   *http.Client
	log    logx.Logger

	mu       sync.RWMutex
	contract string
}

func NewClient(lcdURL, contract string, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		lcdURL:   strings.TrimRight(strings.TrimSpace(lcdURL), "/"),
		contract: strings.TrimSpace(contract),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// SetContract swaps the contract address (config reload).
func (c *Client) SetContract(contract string) {
	c.mu.Lock()
	c.contract = strings.TrimSpace(contract)
	c.mu.Unlock()
}

type announcementsQuery struct {
	Announcements struct {
		Since *Nanos `json:"since"`
	} `json:"announcements"`
}

type smartQueryResponse struct {
	Data []Announcement `json:"data"`
}

// Announcements queries the contract for announcements with time after the
// given watermark (zero means all known, bounded by the server default) and
// returns them sorted ascending by id.
//
// The contract's since bound is inclusive at seconds granularity and the
// server returns records newest-first, so callers must still dedup by id.
func (c *Client) Announcements(ctx context.Context, since Nanos) ([]Announcement, error) {
	c.mu.RLock()
	contract := c.contract
	c.mu.RUnlock()
	if contract == "" {
		return nil, ErrNoContract
	}

	var q announcementsQuery
	if !since.IsZero() {
		s := since
		q.Announcements.Since = &s
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(body)

	reqURL := c.lcdURL + "/cosmwasm/wasm/v1/contract/" + url.PathEscape(contract) + "/smart/" + url.PathEscape(encoded)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query contract: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("query contract: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out smartQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The contract returns newest-first; the dispatcher wants ascending ids.
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].ID < out.Data[j].ID })

	c.log.Debug("fetched announcements", logx.Int("count", len(out.Data)), logx.Uint64("since", uint64(since)))
	return out.Data, nil
}
