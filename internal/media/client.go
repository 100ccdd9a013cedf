package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nvoloshin/callmeter/internal/logger"
)

// Client talks to the external real-time media service. The billing core
// only ever asks it to tear a room down; everything else about the media
// plane is someone else's problem.
type Client struct {
	MediaAddr string

	client *http.Client
	logger logger.Logger
}

func NewClient(addr string, l logger.Logger) *Client {
	return &Client{
		MediaAddr: addr,
		client:    &http.Client{},
		logger:    l,
	}
}

// SignalTermination asks the media service to end the room. reason is one of
// models.EndReasonNormal or models.EndReasonInsufficientFunds.
func (c *Client) SignalTermination(ctx context.Context, roomName string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(struct {
		Reason string `json:"reason"`
	}{Reason: reason})
	if err != nil {
		return fmt.Errorf("failed to encode termination request: %w", err)
	}

	url := c.MediaAddr + "/api/rooms/" + roomName + "/terminate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send termination signal: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Media service rejected termination", "status_code", resp.StatusCode, "room_name", roomName)
		return fmt.Errorf("media service returned status %d for room %s", resp.StatusCode, roomName)
	}

	c.logger.Debug("Termination signal sent", "room_name", roomName, "reason", reason)
	return nil
}
