package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiError is the server's JSON error envelope.
type apiError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *apiError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Description)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(base, token string, timeout time.Duration) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// do sends body as JSON and returns the raw response body on 2xx.
func (c *client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}
	return raw, nil
}

func (c *client) getIdentity(ctx context.Context, addr string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/identity/"+url.PathEscape(addr), nil)
}

func (c *client) getLedgerIdentity(ctx context.Context, addr string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/chain/identity/"+url.PathEscape(addr), nil)
}

func (c *client) store(ctx context.Context, hash, sourceChain string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/chain/identity", map[string]string{
		"identityHash": hash,
		"sourceChain":  sourceChain,
	})
}

func (c *client) share(ctx context.Context, recipient string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/chain/identity/share", map[string]string{"recipient": recipient})
}

func (c *client) importIdentity(ctx context.Context, sourceChain, sourceAddress, identityType string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/api/chain/identity/import", map[string]string{
		"sourceChain":   sourceChain,
		"sourceAddress": sourceAddress,
		"identityType":  identityType,
	})
}

func (c *client) networkStatus(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/network/status", nil)
}

func (c *client) history(ctx context.Context, addr string, limit int) (json.RawMessage, error) {
	path := "/api/chain/operations/" + url.PathEscape(addr) + "/history"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	return c.do(ctx, http.MethodGet, path, nil)
}
