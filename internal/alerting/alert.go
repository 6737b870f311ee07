package alerting

import (
	"context"
	"errors"
)

// ErrNoInterrupter is returned when no channel can perform a system-level hand-off.
var ErrNoInterrupter = errors.New("alerting: no interrupt channel configured")

// Priority 告警优先级。
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
	PriorityMax
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMax:
		return "max"
	default:
		return "default"
	}
}

// Alert is one delivery handed to a channel.
type Alert struct {
	// Key is stable per plan step so a channel can de-duplicate re-deliveries.
	Key          string
	Title        string
	Body         string
	Label        string
	Priority     Priority
	ActionTarget string
	Urgent       bool
	AutoDismiss  bool
}

// Text renders title, body and label as a single message.
func (a Alert) Text() string {
	text := a.Title
	if a.Body != "" {
		text += "\n" + a.Body
	}
	if a.Label != "" {
		text += " (" + a.Label + ")"
	}
	if a.ActionTarget != "" {
		text += "\n" + a.ActionTarget
	}
	return text
}

// Deliverer 定义告警输送接口。
type Deliverer interface {
	Deliver(ctx context.Context, alert Alert) error
}

// Interrupter is a louder, system-level alert surface (phone call, ringing push).
type Interrupter interface {
	Interrupt(ctx context.Context, message string) error
}
