package starknet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/protocol"
)

// relayPayload is what the signing relay receives for one command
type relayPayload struct {
	protocol.Command
	Entrypoint string   `json:"entrypoint"`
	Calldata   []string `json:"calldata"`
}

// Relay forwards write commands to the signing relay. Signing and waiting
// for settlement happen on the relay side.
type Relay struct {
	client  *http.Client
	timeout time.Duration
	baseURL string
}

// NewRelay creates a relay client
func NewRelay(baseURL string, timeout time.Duration) *Relay {
	return &Relay{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Send posts a command to <relay>/commands
func (r *Relay) Send(ctx context.Context, cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return faults.Invariantf(string(cmd.Type), "%v", err)
	}

	payload, err := json.Marshal(relayPayload{
		Command:    cmd,
		Entrypoint: cmd.Entrypoint(),
		Calldata:   cmd.Calldata(),
	})
	if err != nil {
		return faults.Transportf(cmd.Entrypoint(), fmt.Errorf("failed to serialize command: %w", err))
	}

	fullURL := fmt.Sprintf("%s/commands", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewBuffer(payload))
	if err != nil {
		return faults.Transportf(cmd.Entrypoint(), fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Message-Type", string(cmd.Type))
	req.Header.Set("X-Message-ID", cmd.ID.String())
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", cmd.Timestamp))

	resp, err := r.client.Do(req)
	if err != nil {
		return faults.Transportf(cmd.Entrypoint(), fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return faults.Transportf(cmd.Entrypoint(), fmt.Errorf("HTTP status %d when sending command", resp.StatusCode))
	}
	return nil
}
