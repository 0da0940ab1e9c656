package core

import (
	"context"

	"github.com/sablev/huddle/internal/domain"
)

// The media engine is an opaque capability. The coordinator threads handles
// through the call-room maps and calls Close in teardown order; it never
// inspects media parameters.

// Router is the per-meeting SFU router handle, created once and shared by
// every participant of the meeting.
type Router interface {
	RTPCapabilities() Frame
	Close() error
}

// Transport is a negotiated network path for one connection.
type Transport interface {
	ID() string
	// Descriptor is the wire descriptor the client needs to connect.
	Descriptor() Frame
	// Connect applies the client's connection parameters (dtlsParameters).
	Connect(params Frame) error
	Close() error
}

// Producer is an outbound media endpoint attached to a transport.
type Producer interface {
	ID() string
	Kind() domain.CallKind
	Close() error
}

// Consumer is an inbound media endpoint attached to a transport.
type Consumer interface {
	ID() string
	Descriptor() Frame
	Close() error
}

// MediaEngine wraps the SFU engine. All Close paths, including CloseRoom on
// an absent meeting, are idempotent no-ops.
type MediaEngine interface {
	CreateRoomIfAbsent(ctx context.Context, meeting domain.MeetingID) (Router, error)
	CreateTransport(ctx context.Context, meeting domain.MeetingID) (Transport, error)
	Produce(ctx context.Context, t Transport, kind domain.CallKind, params Frame) (Producer, error)
	// Consume returns (nil, nil) when capability negotiation is incompatible:
	// no media to relay for this producer, not an error.
	Consume(ctx context.Context, t Transport, p Producer, capabilities Frame) (Consumer, error)
	CloseRoom(meeting domain.MeetingID) error
}
