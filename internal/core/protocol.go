package core

import (
	json "github.com/goccy/go-json"
)

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Wire event names. Inbound and outbound share the chat/signaling names;
// media negotiation replies mirror their requests.
const (
	EvtInit           = "init"
	EvtError          = "error"
	EvtJoinThread     = "join-thread"
	EvtLeaveThread    = "leave-thread"
	EvtMessage        = "message"
	EvtStartTyping    = "start-typing"
	EvtStopTyping     = "stop-typing"
	EvtMarkRead       = "mark-read"
	EvtRead           = "read"
	EvtGetOnlineUsers = "get-online-users"
	EvtOnlineUsers    = "online-users"
	EvtUserOnline     = "user-online"
	EvtUserOffline    = "user-offline"

	EvtOffer        = "offer"
	EvtAnswer       = "answer"
	EvtICECandidate = "ice-candidate"
	EvtCallActive   = "call:active"
	EvtCallEnded    = "call:ended"
	EvtCallEnd      = "call:end"

	EvtGetRTPCapabilities   = "get-rtp-capabilities"
	EvtRTPCapabilities      = "rtp-capabilities"
	EvtCreateTransport      = "create-transport"
	EvtTransportCreated     = "transport-created"
	EvtConnectTransport     = "connect-transport"
	EvtTransportConnected   = "transport-connected"
	EvtProduce              = "produce"
	EvtProduced             = "produced"
	EvtCreateRecvTransport  = "create-recv-transport"
	EvtRecvTransportCreated = "recv-transport-created"
	EvtConnectRecvTransport = "connect-recv-transport"
	EvtConsume              = "consume"
	EvtConsumed             = "consumed"
)

// Encode marshals an outbound envelope. Marshal failures are programming
// errors on our own payload types, so the error is returned for logging only.
func Encode(event string, data any) (Frame, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

// Decode splits an inbound frame into its envelope.
func Decode(f Frame) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(f, &env)
	return env, err
}
