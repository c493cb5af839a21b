package core

import (
	"sync"

	"github.com/vovakirdan/pulsechat-server/internal/metrics"
)

// DefaultClientBuffer is the event buffer used when none is configured.
const DefaultClientBuffer = 16

// Client is one live session as seen by the core layer.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	quit     chan struct{}
	quitOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		quit:     make(chan struct{}),
	}
}

// Deliver queues an event without blocking. Returns false when the client
// buffer is full and the event was dropped.
func (c *Client) Deliver(event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		metrics.DroppedEventsTotal.WithLabelValues("slow_consumer").Inc()
		return false
	}
}

func (c *Client) close() {
	c.quitOnce.Do(func() { close(c.quit) })
}

