package config

import (
	"context"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/localrag/pkg/log"
)

type TelegramConfig struct {
	Token   string `env:"TELEGRAM_TOKEN,required,notEmpty"`
	OwnerID int64  `env:"TELEGRAM_OWNER_ID,required"`
	// Extra users allowed to chat with the bot, comma separated.
	AllowedIDs  []int64       `env:"TELEGRAM_ALLOWED_IDS" envSeparator:","`
	PollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"10s"`
	// Uploaded files are indexed when true.
	IndexUploads bool `env:"TELEGRAM_INDEX_UPLOADS" envDefault:"true"`
}

func NewTelegramConfig(ctx context.Context) *TelegramConfig {
	c := &TelegramConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Telegram config")
	}
	return c
}

// Allowed reports whether the user may talk to the bot.
func (c *TelegramConfig) Allowed(userID int64) bool {
	return userID == c.OwnerID || slices.Contains(c.AllowedIDs, userID)
}
