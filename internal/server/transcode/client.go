// Package transcode talks to the external transcode worker. Jobs are
// submitted over HTTP; completion comes back asynchronously through the
// webhook surface.
package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"uplink/internal/common"
)

// Client submits jobs to the worker's HTTP endpoint.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type jobRequest struct {
	FileID     string   `json:"fileId"`
	SourceURL  string   `json:"sourceUrl"`
	Qualities  []string `json:"qualities"`
	WebhookURL string   `json:"webhookUrl"`
}

type jobResponse struct {
	JobID string `json:"jobId"`
}

// StartJob submits one transcode job and returns the worker's job id.
func (c *Client) StartJob(ctx context.Context, fileID, sourceURL string, qualities []string, webhookURL string) (string, error) {
	body, err := json.Marshal(jobRequest{
		FileID:     fileID,
		SourceURL:  sourceURL,
		Qualities:  qualities,
		WebhookURL: webhookURL,
	})
	if err != nil {
		return "", fmt.Errorf("encode job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: transcode worker: %v", common.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: transcode worker returned %d: %s", common.ErrUpstream, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode worker response: %v", common.ErrUpstream, err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("%w: worker returned no job id", common.ErrUpstream)
	}
	return out.JobID, nil
}
