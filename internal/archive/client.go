// Package archive ships completed-session transcripts to the external
// archiving collaborator over HTTP. Archiving is best effort: the
// consultation service completes sessions whether or not this call lands.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"advisor-marketplace/backend/internal/models"
	"advisor-marketplace/backend/pkg/logger"
)

// Client posts transcripts to the archive service. A client with an empty
// base URL is disabled and archives nothing.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type archiveRequest struct {
	SessionID   string           `json:"session_id"`
	ClientID    uint             `json:"client_id"`
	AdvisorID   uint             `json:"advisor_id"`
	Theme       string           `json:"theme"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Messages    []archiveMessage `json:"messages"`
}

type archiveMessage struct {
	SenderID uint      `json:"sender_id"`
	Content  string    `json:"content"`
	MediaRef string    `json:"media_ref,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

type archiveResponse struct {
	ArchiveID string `json:"archive_id"`
}

// Archive implements service.Archiver.
func (c *Client) Archive(ctx context.Context, session *models.Session, messages []models.Message) (string, error) {
	if c.baseURL == "" {
		return "", nil
	}

	payload := archiveRequest{
		SessionID:   session.ID,
		ClientID:    session.ClientID,
		AdvisorID:   session.AdvisorID,
		Theme:       session.Theme,
		CompletedAt: session.CompletedAt,
		Messages:    make([]archiveMessage, len(messages)),
	}
	for i, m := range messages {
		payload.Messages[i] = archiveMessage{
			SenderID: m.SenderID,
			Content:  m.Content,
			MediaRef: m.MediaRef,
			SentAt:   m.SentAt,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode archive payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcripts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build archive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("archive request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("archive service returned status %d", resp.StatusCode)
	}

	var decoded archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode archive response: %w", err)
	}
	return decoded.ArchiveID, nil
}
