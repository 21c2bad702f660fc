package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/roundtable/pkg/provider"
	"github.com/harun/roundtable/pkg/store"
)

// AgentSummary is one persona in the /api/agents listing
type AgentSummary struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Color     string `json:"color"`
	Avatar    string `json:"avatar"`
	Role      string `json:"role"`
}

// ProviderSummary is one catalog entry in the /api/providers listing
type ProviderSummary struct {
	provider.CatalogEntry
	Configured bool `json:"configured"`
}

// UploadResponse is the body returned by /api/upload
type UploadResponse struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Bytes    int    `json:"bytes"`
}

// UsageResponse is the body returned by /api/usage
type UsageResponse struct {
	*store.UsageSummary
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// ErrorResponse is the body of failed REST calls
type ErrorResponse struct {
	Error string `json:"error"`
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	Idle         bool      `json:"idle"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	RateLimiter  *FrameRateLimiter

	// writeMu serializes writes; gorilla connections allow one writer
	writeMu sync.Mutex
}
