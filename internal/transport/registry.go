package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// ActFunc enqueues action for the kernel entity identified by id. It is the
// transport-facing shape of *kernel.Kernel[...].Act, kept as a plain
// function type so this package never imports internal/kernel or
// internal/effects: transports do not know about the kernel's generic
// parameters, and the lifecycle does not know about transports.
type ActFunc func(ctx context.Context, id string, action chattypes.Action)

// ChannelSender delivers text back to one external participant on a single
// channel. Each channel implementation (ChannelDiscord, ChannelWebSocket)
// satisfies this for its own externalID namespace.
type ChannelSender interface {
	SendTo(ctx context.Context, externalID string, text string) error
}

// Registry implements effects.Sender by routing a chattypes.UserID.String()
// key to the channel that owns it.
type Registry struct {
	mu       sync.RWMutex
	channels map[chattypes.Channel]ChannelSender
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[chattypes.Channel]ChannelSender)}
}

// Register associates a channel name with the sender that owns it. Call
// once per enabled transport at bootstrap.
func (r *Registry) Register(channel chattypes.Channel, sender ChannelSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[channel] = sender
}

// Send implements effects.Sender: id is a chattypes.UserID.String() value
// ("<channel>:<external id>"), split back apart to find the right sender.
func (r *Registry) Send(ctx context.Context, id string, text string) error {
	channel, externalID, ok := splitUserID(id)
	if !ok {
		return fmt.Errorf("transport: malformed entity id %q", id)
	}

	r.mu.RLock()
	sender, ok := r.channels[channel]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no channel registered for %q", channel)
	}
	return sender.SendTo(ctx, externalID, text)
}

// splitUserID reverses chattypes.UserID.String()'s "<channel>:<external>"
// format. externalID may itself contain colons (e.g. a websocket connection
// label never does, but this keeps the split robust either way).
func splitUserID(id string) (channel chattypes.Channel, externalID string, ok bool) {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return chattypes.Channel(id[:i]), id[i+1:], true
		}
	}
	return "", "", false
}
