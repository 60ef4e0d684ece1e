package presence

import (
	"e2e_relay/internal/model"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier pushes events to users who are currently present. It is the only
// path by which services reach a live session.
type Notifier struct {
	registry *Registry
}

func NewNotifier(r *Registry) *Notifier {
	return &Notifier{registry: r}
}

// Notify reports whether the event was queued on the user's session. A false
// result is never an error: the caller's durable state is the fallback.
func (n *Notifier) Notify(user uuid.UUID, ev model.Event) bool {
	s, ok := n.registry.Lookup(user)
	if !ok {
		return false
	}
	if !s.Push(ev) {
		log.Debug("live push dropped",
			zap.String("user", user.String()),
			zap.String("session", s.ID()),
			zap.String("event", ev.Type),
		)
		return false
	}
	return true
}

func (n *Notifier) Online(user uuid.UUID) bool {
	return n.registry.Online(user)
}
