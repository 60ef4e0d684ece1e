package presence

import (
	"sync"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

// RecordingSession is an in-memory Session for tests of the services that
// push through a Notifier.
type RecordingSession struct {
	id string

	mu     sync.Mutex
	events []model.Event
	full   bool
}

func NewRecordingSession() *RecordingSession {
	return &RecordingSession{id: uuid.NewString()}
}

func (s *RecordingSession) ID() string { return s.id }

func (s *RecordingSession) Push(ev model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

// SetFull makes later pushes fail as if the transport buffer were saturated.
func (s *RecordingSession) SetFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

func (s *RecordingSession) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

// Last returns the most recent event of type typ.
func (s *RecordingSession) Last(typ string) (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == typ {
			return s.events[i], true
		}
	}
	return model.Event{}, false
}
