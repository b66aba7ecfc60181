// Package notify sends upload notifications to an external email provider.
// Delivery is best-effort: failures are logged and never surface into the
// upload path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"uplink/internal/logging"
	"uplink/internal/server/models"
)

// EmailNotifier posts a JSON message to the configured provider endpoint.
// An empty URL disables notifications entirely.
type EmailNotifier struct {
	url    string
	from   string
	http   *http.Client
	logger logging.Logger
}

func NewEmailNotifier(url, from string, logger logging.Logger) *EmailNotifier {
	return &EmailNotifier{
		url:    url,
		from:   from,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("service", "notify"),
	}
}

type uploadMessage struct {
	From        string `json:"from"`
	Subject     string `json:"subject"`
	ClientName  string `json:"clientName"`
	ProjectName string `json:"projectName"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	FileID      string `json:"fileId"`
}

// UploadCompleted announces a registered upload.
func (n *EmailNotifier) UploadCompleted(ctx context.Context, file *models.File) {
	if n.url == "" {
		return
	}

	msg := uploadMessage{
		From:        n.from,
		Subject:     fmt.Sprintf("New upload: %s", file.FileName),
		ClientName:  file.ClientName,
		ProjectName: file.ProjectName,
		FileName:    file.FileName,
		FileSize:    file.FileSize,
		FileID:      file.ID,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error(ctx, "encode notification", "fileId", file.ID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error(ctx, "build notification request", "fileId", file.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		n.logger.Error(ctx, "send notification", "fileId", file.ID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Error(ctx, "notification rejected", "fileId", file.ID, "status", resp.StatusCode)
		return
	}
	n.logger.Info(ctx, "notification sent", "fileId", file.ID)
}
