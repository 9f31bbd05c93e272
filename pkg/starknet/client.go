package starknet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/pacroyale/viewer/pkg/faults"
	"github.com/pacroyale/viewer/pkg/felt"
)

const userAgent = "pacroyale-viewer/1.0"

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type callParams struct {
	Request callRequest `json:"request"`
	BlockID string      `json:"block_id"`
}

type callRequest struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Client issues read-only starknet_call requests against one contract
type Client struct {
	client   *http.Client
	timeout  time.Duration
	nodeURL  string
	contract string
	log      slog.Logger

	nextID uint64

	selectorMutex sync.Mutex
	selectors     map[string]string
}

// NewClient creates a JSON-RPC client for a node and contract
func NewClient(nodeURL, contractAddress string, timeout time.Duration, log slog.Logger) *Client {
	if log == nil {
		log = slog.Disabled
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout:   timeout,
		nodeURL:   nodeURL,
		contract:  contractAddress,
		log:       log,
		selectors: make(map[string]string),
	}
}

func (c *Client) selector(entrypoint string) string {
	c.selectorMutex.Lock()
	defer c.selectorMutex.Unlock()

	if s, ok := c.selectors[entrypoint]; ok {
		return s
	}
	s := Selector(entrypoint)
	c.selectors[entrypoint] = s
	return s
}

// Call invokes a view function and returns its raw scalar result
func (c *Client) Call(ctx context.Context, entrypoint string, calldata ...string) ([]string, error) {
	if calldata == nil {
		calldata = []string{}
	}
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  "starknet_call",
		Params: callParams{
			Request: callRequest{
				ContractAddress:    c.contract,
				EntryPointSelector: c.selector(entrypoint),
				Calldata:           calldata,
			},
			BlockID: "latest",
		},
	}

	// Prepare JSON payload
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, faults.Transportf(entrypoint, fmt.Errorf("failed to serialize request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, faults.Transportf(entrypoint, fmt.Errorf("failed to create request: %w", err))
	}

	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, faults.Transportf(entrypoint, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, faults.Transportf(entrypoint, fmt.Errorf("HTTP status %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, faults.Transportf(entrypoint, fmt.Errorf("invalid JSON-RPC response: %w", err))
	}
	if rpcResp.Error != nil {
		return nil, faults.Transportf(entrypoint, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}

	var result []string
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, faults.Transportf(entrypoint, fmt.Errorf("result is not a scalar list: %w", err))
	}

	c.log.Tracef("%s request=%s scalars=%d", entrypoint, requestID[:8], len(result))
	return result, nil
}

// GameClient exposes the four game reads on top of Client
type GameClient struct {
	*Client
}

// NewGameClient creates the read side of the game boundary
func NewGameClient(client *Client) *GameClient {
	return &GameClient{Client: client}
}

// GetMap reads the board of a session
func (g *GameClient) GetMap(ctx context.Context, sessionID int64) ([]string, error) {
	return g.Call(ctx, "get_map", felt.FromInt(sessionID))
}

// GetPositions reads the player slots of a session
func (g *GameClient) GetPositions(ctx context.Context, sessionID int64) ([]string, error) {
	return g.Call(ctx, "get_positions", felt.FromInt(sessionID))
}

// GetTopSessionID reads the newest session id
func (g *GameClient) GetTopSessionID(ctx context.Context) ([]string, error) {
	return g.Call(ctx, "get_top_session_id")
}

// GetWinner reads the winner of a session (zero when none yet)
func (g *GameClient) GetWinner(ctx context.Context, sessionID int64) ([]string, error) {
	return g.Call(ctx, "get_winner", felt.FromInt(sessionID))
}
