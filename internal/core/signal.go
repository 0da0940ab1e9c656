// Package core defines the contracts between the gateway, the coordinator
// and the external collaborators. Implementations live in app and adapters.
package core

// Frame is a raw wire payload.
type Frame []byte

// ConnID identifies one live transport-level session.
type ConnID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
