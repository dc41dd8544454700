// Package feargreed fetches the crypto Fear & Greed sentiment index.
package feargreed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const DefaultURL = "https://api.alternative.me/fng/?limit=1"

var (
	ErrStatus = errors.New("feargreed: unexpected status")
	ErrEmpty  = errors.New("feargreed: empty response")
)

// Index is one reading of the sentiment index. Value is in [0, 100].
type Index struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	Timestamp      int64  `json:"timestamp"` // ms, as published
	FetchedAt      int64  `json:"fetchedAt"` // ms
}

// Classify maps a value to its band name.
func Classify(value int) string {
	switch {
	case value <= 20:
		return "Extreme Fear"
	case value <= 40:
		return "Fear"
	case value <= 60:
		return "Neutral"
	case value <= 80:
		return "Greed"
	}
	return "Extreme Greed"
}

// Client reads the latest index value.
type Client struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client for url (DefaultURL when empty).
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}, now: time.Now}
}

type response struct {
	Data []struct {
		Value     string `json:"value"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

// Latest fetches the current index.
func (c *Client) Latest(ctx context.Context) (*Index, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feargreed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("feargreed: decode: %w", err)
	}
	if len(body.Data) == 0 {
		return nil, ErrEmpty
	}

	v, err := strconv.Atoi(body.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("feargreed: value %q: %w", body.Data[0].Value, err)
	}
	if v < 0 || v > 100 {
		return nil, fmt.Errorf("feargreed: value %d out of range", v)
	}

	now := c.now().UnixMilli()
	idx := &Index{
		Value:          v,
		Classification: Classify(v),
		Timestamp:      now,
		FetchedAt:      now,
	}
	if sec, err := strconv.ParseInt(body.Data[0].Timestamp, 10, 64); err == nil && sec > 0 {
		idx.Timestamp = sec * 1000
	}
	return idx, nil
}
