// Package memstore is the in-process ThreadStore used by the dev server and
// tests. Unread counters are read-modify-written under the store lock, so
// concurrent sends to the same thread never lose increments.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

type threadRecord struct {
	thread   domain.Thread
	messages []*domain.Message
	unread   map[domain.UserID]int
}

type Store struct {
	mu      sync.Mutex
	threads map[domain.ThreadID]*threadRecord
}

var _ core.ThreadStore = (*Store)(nil)

func New() *Store {
	return &Store{threads: make(map[domain.ThreadID]*threadRecord)}
}

// CreateThread seeds a thread; the production store owns thread creation,
// this exists so the dev server and tests have something to talk to.
func (s *Store) CreateThread(id domain.ThreadID, participants ...domain.UserID) *domain.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &threadRecord{
		thread: domain.Thread{
			ID:           id,
			Participants: participants,
			Status:       domain.ThreadOpen,
		},
		unread: make(map[domain.UserID]int),
	}
	s.threads[id] = rec
	t := rec.thread
	return &t
}

func (s *Store) FindThread(_ context.Context, id domain.ThreadID) (*domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[id]
	if !ok {
		return nil, nil
	}
	t := rec.thread
	t.Participants = append([]domain.UserID(nil), rec.thread.Participants...)
	return &t, nil
}

func (s *Store) CreateMessage(_ context.Context, threadID domain.ThreadID, sender domain.UserID, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s absent", threadID)
	}
	msg := &domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		Thread:    threadID,
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now(),
	}
	rec.messages = append(rec.messages, msg)
	m := *msg
	return &m, nil
}

func (s *Store) PaginateMessages(_ context.Context, threadID domain.ThreadID, page, pageSize int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s absent", threadID)
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	start := page * pageSize
	if start >= len(rec.messages) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(rec.messages) {
		end = len(rec.messages)
	}
	out := make([]*domain.Message, 0, end-start)
	for _, m := range rec.messages[start:end] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) TouchLastMessage(_ context.Context, threadID domain.ThreadID, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s absent", threadID)
	}
	rec.thread.LastMessage = msg.ID
	rec.thread.LastMessageAt = msg.CreatedAt
	return nil
}

func (s *Store) IncrementUnread(_ context.Context, threadID domain.ThreadID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s absent", threadID)
	}
	rec.unread[user]++
	return nil
}

func (s *Store) ResetUnread(_ context.Context, threadID domain.ThreadID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s absent", threadID)
	}
	rec.unread[user] = 0
	return nil
}

func (s *Store) UnreadCount(_ context.Context, threadID domain.ThreadID, user domain.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return 0, fmt.Errorf("thread %s absent", threadID)
	}
	return rec.unread[user], nil
}

func (s *Store) MarkMessagesRead(_ context.Context, threadID domain.ThreadID, reader domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s absent", threadID)
	}
	for _, m := range rec.messages {
		if m.Sender != reader {
			m.HasRead = true
		}
	}
	return nil
}
