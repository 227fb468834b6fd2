package dispatcher

import (
	"context"

	"github.com/garyjia/mutation-workflow/internal/domain/event"
)

// Handler reacts to a request event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Wildcard  bool
	Handler   Handler
}
