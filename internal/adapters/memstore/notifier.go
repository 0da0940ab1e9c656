package memstore

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

// LogNotifier stands in for the external push capability in dev setups.
type LogNotifier struct{}

var _ core.Notifier = LogNotifier{}

func (LogNotifier) Notify(_ context.Context, user domain.UserID, category, title, body string, _ map[string]any) error {
	log.Info().Str("module", "memstore.notifier").Str("user", string(user)).Str("category", category).Str("title", title).Str("body", body).Msg("notification")
	return nil
}
