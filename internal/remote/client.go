// Package remote implements the HTTP client for the tracking store of
// record. Every call retries transient failures with exponential backoff up
// to a bounded attempt count, so one flush cycle never hangs forever.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"backend-parklookup/internal/track"

	"github.com/cenkalti/backoff/v4"
)

type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	maxRetries uint64
}

func New(baseURL, token string, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = 4
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		http:       &http.Client{Timeout: 15 * time.Second},
		maxRetries: uint64(maxRetries),
	}
}

type createSessionRequest struct {
	Association track.Association  `json:"association"`
	Activity    track.ActivityType `json:"activity,omitempty"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateSession(ctx context.Context, assoc track.Association, activity track.ActivityType) (string, error) {
	var out createSessionResponse
	err := c.post(ctx, "/tracking/sessions", createSessionRequest{
		Association: assoc,
		Activity:    activity,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("remote: create session returned no id")
	}
	return out.ID, nil
}

type appendPointsRequest struct {
	SeqStart int64         `json:"seq_start"`
	SeqEnd   int64         `json:"seq_end"`
	Points   []track.Point `json:"points"`
}

// AppendPoints uploads one contiguous sequence range. The server treats the
// range as the idempotency key, so a double-send after an ambiguous network
// failure is harmless.
func (c *Client) AppendPoints(ctx context.Context, remoteID string, seqStart, seqEnd int64, points []track.Point) error {
	return c.post(ctx, "/tracking/sessions/"+remoteID+"/points", appendPointsRequest{
		SeqStart: seqStart,
		SeqEnd:   seqEnd,
		Points:   points,
	}, nil)
}

func (c *Client) StopSession(ctx context.Context, remoteID string, summary track.Summary) error {
	return c.post(ctx, "/tracking/sessions/"+remoteID+"/stop", summary, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("remote: %s returned %d", path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not heal on retry.
			return backoff.Permanent(fmt.Errorf("remote: %s returned %d", path, resp.StatusCode))
		}
		if out != nil {
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(err)
			}
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}
