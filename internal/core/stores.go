package core

import (
	"context"

	"github.com/sablev/huddle/internal/domain"
)

// IdentityResolver verifies a connection-time credential. Failure rejects
// the connection before any handler runs.
type IdentityResolver interface {
	Verify(ctx context.Context, credential string) (*domain.User, error)
}

// ThreadStore is the persistence collaborator for threads and messages.
// It owns unread-count bookkeeping; increments and resets are atomic at the
// store level so the façade never does lock-read-external-call-write.
type ThreadStore interface {
	FindThread(ctx context.Context, id domain.ThreadID) (*domain.Thread, error)
	CreateMessage(ctx context.Context, threadID domain.ThreadID, sender domain.UserID, text string) (*domain.Message, error)
	PaginateMessages(ctx context.Context, threadID domain.ThreadID, page, pageSize int) ([]*domain.Message, error)
	TouchLastMessage(ctx context.Context, threadID domain.ThreadID, msg *domain.Message) error
	IncrementUnread(ctx context.Context, threadID domain.ThreadID, user domain.UserID) error
	ResetUnread(ctx context.Context, threadID domain.ThreadID, user domain.UserID) error
	UnreadCount(ctx context.Context, threadID domain.ThreadID, user domain.UserID) (int, error)
	MarkMessagesRead(ctx context.Context, threadID domain.ThreadID, reader domain.UserID) error
}

// Notifier is the external push-notification capability.
type Notifier interface {
	Notify(ctx context.Context, user domain.UserID, category, title, body string, payload map[string]any) error
}
