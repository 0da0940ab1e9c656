package domain

import "time"

// MeetingID keys one call's set of media resources. It is derived from the
// thread id when per-thread rooms are enabled.
type MeetingID string

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

// CallSession is one active call. It exists if and only if Participants is
// non-empty; at most one session per thread.
type CallSession struct {
	ThreadID     ThreadID            `json:"threadId"`
	Kind         CallKind            `json:"callType"`
	InitiatorID  UserID              `json:"initiatorId"`
	Participants map[UserID]struct{} `json:"-"`
	StartedAt    time.Time           `json:"startedAt"`
}
