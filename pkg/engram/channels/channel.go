// Package channels defines the interface chat integrations implement to
// expose the memory engine over a messaging platform.
package channels

import (
	"context"
	"fmt"
	"time"
)

// Channel is a chat surface for the memory engine. Implementations own
// their platform session and translate chat commands into engine calls.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// IsConnected reports whether the channel is currently connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
}

var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to channel")
)
