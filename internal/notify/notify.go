// Package notify delivers best-effort notifications about appointments to
// patients, dentists and staff roles.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Target addresses either one user or every user holding a role.
type Target struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Role   string     `json:"role,omitempty"`
}

func ToUser(id uuid.UUID) Target { return Target{UserID: &id} }

func ToRole(role string) Target { return Target{Role: role} }

func (t Target) String() string {
	if t.UserID != nil {
		return "user:" + t.UserID.String()
	}
	return "role:" + t.Role
}

type Message struct {
	Kind      string         `json:"kind"`
	Target    Target         `json:"target"`
	Text      string         `json:"text"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier sends a message. Callers treat delivery as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of a broker. Used when no
// broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.log.Info("notification",
		zap.String("kind", msg.Kind),
		zap.Stringer("target", msg.Target),
		zap.String("text", msg.Text),
	)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }
