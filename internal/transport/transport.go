// SPDX-License-Identifier: MIT

// Package transport forwards log lines, progress and per-clip results to
// listeners outside the process.
package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"yukkuri/internal/log"
)

// Kind tags an Event.
type Kind uint8

const (
	KindLog Kind = iota + 1
	KindProgress
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindProgress:
		return "progress"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is one message sent to listeners.
type Event struct {
	Seq     uint32    `json:"seq"`
	Time    time.Time `json:"time"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message,omitempty"`
	Percent float64   `json:"percent,omitempty"`
	Path    string    `json:"path,omitempty"`
	Tier    string    `json:"tier,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Transport delivers events. Implementations must be safe for concurrent use.
type Transport interface {
	Send(ev Event) error
	Close() error
}

// Hub stamps events and fans them out to every registered transport.
type Hub struct {
	mu         sync.RWMutex
	transports []Transport
	seq        atomic.Uint32
}

// NewHub returns a hub over the given transports.
func NewHub(ts ...Transport) *Hub {
	return &Hub{transports: ts}
}

// Add registers another transport.
func (h *Hub) Add(t Transport) {
	h.mu.Lock()
	h.transports = append(h.transports, t)
	h.mu.Unlock()
}

// Len returns the number of registered transports.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.transports)
}

// Publish sends ev to every transport. Delivery errors are logged at debug
// level and never returned to the caller.
func (h *Hub) Publish(ev Event) {
	ev.Seq = h.seq.Add(1)
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, t := range h.transports {
		if err := t.Send(ev); err != nil {
			log.Debugf("Transport: dropped event %d: %v", ev.Seq, err)
		}
	}
}

// Log returns a sink that publishes each message as a log event.
func (h *Hub) Log() log.LogFunc {
	return func(message string) {
		h.Publish(Event{Kind: KindLog, Message: message})
	}
}

// Progress returns a callback that publishes progress events.
func (h *Hub) Progress() func(percent float64, status string) {
	return func(percent float64, status string) {
		h.Publish(Event{Kind: KindProgress, Percent: percent, Message: status})
	}
}

// Result publishes the outcome for one clip.
func (h *Hub) Result(path, tier string, err error) {
	ev := Event{Kind: KindResult, Path: path, Tier: tier}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Publish(ev)
}

// Close closes every transport and returns the joined errors.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, t := range h.transports {
		errs = append(errs, t.Close())
	}
	h.transports = nil
	return errors.Join(errs...)
}
