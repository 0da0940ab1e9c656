package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

// ChatService bridges a send-message signal into a persisted message plus
// unread maintenance plus fan-out, as one logical operation. Persistence
// ordering per send: persist, then unread increments, then broadcast, then
// notifications. If persistence fails nothing else happens.
type ChatService struct {
	Store    core.ThreadStore
	Notifier core.Notifier
	Registry *Registry
}

func NewChatService(store core.ThreadStore, notifier core.Notifier, reg *Registry) *ChatService {
	return &ChatService{Store: store, Notifier: notifier, Registry: reg}
}

// verifyParticipant checks the sender against the store, never the client.
func (s *ChatService) verifyParticipant(ctx context.Context, threadID domain.ThreadID, user domain.UserID) (*domain.Thread, error) {
	thread, err := s.Store.FindThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("%w: find thread: %w", domain.ErrStore, err)
	}
	if thread == nil {
		return nil, fmt.Errorf("%w: thread %s", domain.ErrNotFound, threadID)
	}
	if !thread.HasParticipant(user) {
		return nil, fmt.Errorf("%w: not a participant of %s", domain.ErrAccessDenied, threadID)
	}
	return thread, nil
}

// JoinThread verifies participation, joins the connection to the thread room
// and resets the reader's unread counter: paging into a thread reads it.
func (s *ChatService) JoinThread(ctx context.Context, user *domain.User, conn core.ConnID, threadID domain.ThreadID) error {
	if _, err := s.verifyParticipant(ctx, threadID, user.ID); err != nil {
		return err
	}
	s.Registry.Join(domain.ThreadRoom(threadID), conn)
	if err := s.Store.ResetUnread(ctx, threadID, user.ID); err != nil {
		log.Error().Err(err).Str("module", "app.chat").Str("thread", string(threadID)).Str("user", string(user.ID)).Msg("reset unread on join")
	}
	log.Info().Str("module", "app.chat").Str("user", string(user.ID)).Str("thread", string(threadID)).Msg("joined thread")
	return nil
}

func (s *ChatService) LeaveThread(user *domain.User, conn core.ConnID, threadID domain.ThreadID) {
	s.Registry.Leave(domain.ThreadRoom(threadID), conn)
	log.Info().Str("module", "app.chat").Str("user", string(user.ID)).Str("thread", string(threadID)).Msg("left thread")
}

// SendMessage persists, updates unread counters, fans out to the thread
// room, and notifies absent participants exactly once each.
func (s *ChatService) SendMessage(ctx context.Context, sender *domain.User, conn core.ConnID, threadID domain.ThreadID, text string) (*domain.Message, error) {
	thread, err := s.verifyParticipant(ctx, threadID, sender.ID)
	if err != nil {
		return nil, err
	}

	msg, err := s.Store.CreateMessage(ctx, threadID, sender.ID, text)
	if err != nil {
		return nil, fmt.Errorf("%w: create message: %w", domain.ErrStore, err)
	}

	if err := s.Store.TouchLastMessage(ctx, threadID, msg); err != nil {
		// The message is persisted; a stale last-message pointer is not
		// worth failing the send over.
		log.Error().Err(err).Str("module", "app.chat").Str("thread", string(threadID)).Msg("touch last message")
	}

	others := thread.OtherParticipants(sender.ID)
	for _, other := range others {
		if err := s.Store.IncrementUnread(ctx, threadID, other); err != nil {
			log.Error().Err(err).Str("module", "app.chat").Str("thread", string(threadID)).Str("user", string(other)).Msg("increment unread")
		}
	}

	if frame, err := core.Encode(core.EvtMessage, msg); err == nil {
		s.Registry.Broadcast(domain.ThreadRoom(threadID), frame, conn)
	} else {
		log.Error().Err(err).Str("module", "app.chat").Msg("encode message")
	}

	room := domain.ThreadRoom(threadID)
	for _, other := range others {
		if s.Registry.IdentityInRoom(room, other) {
			continue
		}
		err := s.Notifier.Notify(ctx, other, "CHAT", "New message", text, map[string]any{
			"threadID": threadID,
			"link":     "/chats/" + string(threadID),
		})
		if err != nil {
			log.Error().Err(err).Str("module", "app.chat").Str("user", string(other)).Msg("notify")
		}
	}

	return msg, nil
}

// MarkRead resets the reader's unread counter and marks others' messages
// read. Safe to call redundantly. The thread room learns who read it.
func (s *ChatService) MarkRead(ctx context.Context, user *domain.User, conn core.ConnID, threadID domain.ThreadID) error {
	if _, err := s.verifyParticipant(ctx, threadID, user.ID); err != nil {
		return err
	}
	if err := s.Store.ResetUnread(ctx, threadID, user.ID); err != nil {
		return fmt.Errorf("%w: reset unread: %w", domain.ErrStore, err)
	}
	if err := s.Store.MarkMessagesRead(ctx, threadID, user.ID); err != nil {
		return fmt.Errorf("%w: mark messages read: %w", domain.ErrStore, err)
	}
	if frame, err := core.Encode(core.EvtRead, map[string]any{"from": user.ID, "threadId": threadID}); err == nil {
		s.Registry.Broadcast(domain.ThreadRoom(threadID), frame, conn)
	}
	return nil
}

// Typing relays a typing indicator to the thread room, sender excluded.
func (s *ChatService) Typing(user *domain.User, conn core.ConnID, threadID domain.ThreadID, start bool) {
	event := core.EvtStopTyping
	if start {
		event = core.EvtStartTyping
	}
	frame, err := core.Encode(event, map[string]any{"from": user.ID})
	if err != nil {
		return
	}
	s.Registry.Broadcast(domain.ThreadRoom(threadID), frame, conn)
}
