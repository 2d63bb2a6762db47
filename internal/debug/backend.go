package debug

import (
	"context"

	"github.com/dshills/stormdbg/internal/debug/descriptor"
	"github.com/dshills/stormdbg/internal/debug/location"
)

// Backend supplies the language-specific capabilities of a session.
// Implementations live in the backends package.
type Backend interface {
	// Kind returns the backend identifier, e.g. "jdb".
	Kind() string

	// Resolver returns the location resolver for this backend's sources.
	Resolver() location.Resolver

	// Descriptor builds the presentation label for connection parameters.
	// It never fails; missing keys produce placeholders.
	Descriptor(params map[string]string) descriptor.Descriptor

	// ParseConfig validates connection parameters into the backend's
	// explicit configuration. Errors wrap ErrInvalidConfig.
	ParseConfig(params map[string]string) (Config, error)
}

// Config is a validated connection configuration.
type Config interface {
	// Params renders the configuration in transport form.
	Params() map[string]string
}

// CommandTransport issues synchronous commands to the backend.
type CommandTransport interface {
	Attach(ctx context.Context, params map[string]string) error
	Resume(ctx context.Context) error
	StepInto(ctx context.Context) error
	StepOver(ctx context.Context) error
	StepOut(ctx context.Context) error

	// Evaluate submits an expression and returns the request id that the
	// matching evaluation-result event will carry.
	Evaluate(ctx context.Context, expression string) (string, error)

	AddBreakpoint(ctx context.Context, loc location.Backend) error
	RemoveBreakpoint(ctx context.Context, loc location.Backend) error
	Disconnect(ctx context.Context) error
}

// EventTransport delivers backend events in emission order.
type EventTransport interface {
	// Events returns the feed of the current connection. It is called once
	// per successful Attach; the transport closes the channel when the
	// connection ends.
	Events() <-chan RawEvent
}

// Transport combines both directions, as most implementations provide them
// on one object.
type Transport interface {
	CommandTransport
	EventTransport
}
