package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// SSE event names.
const (
	EventDiff = "diff"
	EventHalt = "halt"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
	diff *domain.StateDiff
}

// matches reports whether a diff event touches one of the watched fields.
// An empty watch list matches everything.
func (e Event) matches(watch []string) bool {
	if len(watch) == 0 || e.diff == nil {
		return true
	}
	for _, field := range watch {
		switch strings.TrimSpace(field) {
		case "messages":
			if len(e.diff.Appended) > 0 {
				return true
			}
		case "next":
			if e.diff.Next != nil {
				return true
			}
		case "supervisor":
			if e.diff.CurrentSupervisor != nil {
				return true
			}
		}
	}
	return false
}

// StreamManager fans engine events out to SSE subscribers, keyed by run id.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for runID. The returned func unsubscribes and closes it.
func (sm *StreamManager) Subscribe(runID string) (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, 16)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan Event]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[runID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, runID)
				}
			}
		})
	}
}

// Subscribers returns the number of listeners for runID.
func (sm *StreamManager) Subscribers(runID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[runID])
}

// Broadcast sends ev to every subscriber of runID. Slow subscribers drop events.
func (sm *StreamManager) Broadcast(runID string, ev Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[runID] {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping event", "run_id", runID, "event", ev.Name)
		}
	}
}

// Hooks returns engine lifecycle hooks that broadcast each step's diff and the halt.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Diff == nil {
				return
			}
			data, err := json.Marshal(e.Diff)
			if err != nil {
				sm.logger.Error("SSE: encode diff", "error", err)
				return
			}
			sm.Broadcast(e.RunID, Event{Name: EventDiff, Data: string(data), diff: e.Diff})
		},
		OnHalt: func(ctx context.Context, e *domain.HaltEvent) {
			data, err := json.Marshal(e)
			if err != nil {
				sm.logger.Error("SSE: encode halt", "error", err)
				return
			}
			sm.Broadcast(e.RunID, Event{Name: EventHalt, Data: string(data)})
		},
	}
}
