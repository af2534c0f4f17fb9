package progress

import (
	"sync"

	"github.com/goccy/go-json"
)

// ChangeKind classifies a StateChange.
type ChangeKind string

const (
	ChangeProgress ChangeKind = "progress"
	ChangeComplete ChangeKind = "complete"
	ChangeError    ChangeKind = "error"
)

// StateChange is one event on the tracker's broadcast channel. Events
// observed by any single subscriber are totally ordered: progress is
// non-decreasing and the sequence ends in exactly one terminal change.
type StateChange struct {
	Kind      ChangeKind      `json:"kind"`
	Stage     string          `json:"stage"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Terminal  bool            `json:"terminal"`
}

// subscriberBuffer bounds each subscriber's queue. When a slow consumer
// falls behind, the oldest undelivered event is dropped; terminal
// events are never dropped.
const subscriberBuffer = 64

// Tracker is the per-request progress state machine. It is owned by a
// single request; Update calls happen-before the events subscribers
// observe.
type Tracker struct {
	mu       sync.Mutex
	category Category
	stages   []Stage
	byName   map[string]Stage
	stage    string
	progress int
	terminal bool
	subs     []chan StateChange
}

// NewTracker creates a tracker for one request.
func NewTracker(cat Category) *Tracker {
	stages := StagesFor(cat)
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name] = s
	}
	return &Tracker{
		category: cat,
		stages:   stages,
		byName:   byName,
		stage:    StageStart,
	}
}

// Category returns the tracker's category.
func (t *Tracker) Category() Category { return t.category }

// Stages returns the configured stage sequence.
func (t *Tracker) Stages() []Stage { return t.stages }

// Subscribe registers a consumer. The returned cancel func detaches it.
func (t *Tracker) Subscribe() (<-chan StateChange, func()) {
	ch := make(chan StateChange, subscriberBuffer)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Reset clears terminal state so the tracker can be reused.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminal = false
	t.progress = 0
	t.stage = StageStart
}

// Update moves to the named stage, raising progress monotonically.
// Re-updating the current stage only replaces message and details.
func (t *Tracker) Update(stage, message string, details json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}

	if s, ok := t.byName[stage]; ok && s.Progress > t.progress {
		t.progress = s.Progress
	}
	t.stage = stage

	t.broadcast(StateChange{
		Kind:     ChangeProgress,
		Stage:    stage,
		Progress: t.progress,
		Message:  message,
		Details:  details,
	})
}

// Complete marks the request finished. Only the first terminal call
// (Complete or Error) wins.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.terminal = true
	t.progress = 100
	t.stage = StageComplete
	t.broadcast(StateChange{
		Kind:     ChangeComplete,
		Stage:    StageComplete,
		Progress: 100,
		Terminal: true,
	})
}

// Error marks the request failed with the given error kind.
func (t *Tracker) Error(kind, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.terminal = true
	t.broadcast(StateChange{
		Kind:      ChangeError,
		Stage:     t.stage,
		Progress:  t.progress,
		Message:   message,
		ErrorKind: kind,
		Terminal:  true,
	})
}

// Terminal reports whether a terminal change has been emitted.
func (t *Tracker) Terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal
}

// broadcast fans the change out to all subscribers. Caller holds mu.
func (t *Tracker) broadcast(change StateChange) {
	for _, ch := range t.subs {
		select {
		case ch <- change:
		default:
			// Slow consumer: make room by discarding the oldest
			// undelivered event, then deliver.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}
