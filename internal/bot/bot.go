// Package bot runs the long-poll update loop and routes inbound messages and
// button presses to the lifecycle components.
package bot

import (
	"context"
	"time"

	"photobot/internal/billing"
	"photobot/internal/domain"
	"photobot/internal/infra"
	"photobot/internal/notify"
	"photobot/internal/pipeline"
	"photobot/internal/queue"
	"photobot/internal/storage"
)

const (
	longPollTimeout = 30 * time.Second
	pollRetryPause  = 3 * time.Second
)

// UpdateSource yields inbound updates. Satisfied by notify.BotAPI.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]notify.Update, error)
}

// Options wires the bot.
type Options struct {
	Channel  notify.Channel
	Updates  UpdateSource
	Queue    *queue.Dispatcher
	Pipeline *pipeline.Pipeline
	Store    storage.ArtifactStore
	Users    domain.UserRepository
	Images   domain.ImageRepository
	Invoices domain.InvoiceRepository
	Billing  *billing.Service
	Logger   infra.Logger

	Pricing         domain.Pricing
	SupportUsername string
	UnpaidLimit     int
	UnpaidWindow    time.Duration
}

// Bot is the inbound side of the service.
type Bot struct {
	channel  notify.Channel
	updates  UpdateSource
	queue    *queue.Dispatcher
	pipeline *pipeline.Pipeline
	store    storage.ArtifactStore
	users    domain.UserRepository
	images   domain.ImageRepository
	invoices domain.InvoiceRepository
	billing  *billing.Service
	logger   infra.Logger

	pricing         domain.Pricing
	supportUsername string
	unpaidLimit     int
	unpaidWindow    time.Duration

	sleep func(time.Duration)
}

// New constructs the bot.
func New(opts Options) *Bot {
	return &Bot{
		channel:         opts.Channel,
		updates:         opts.Updates,
		queue:           opts.Queue,
		pipeline:        opts.Pipeline,
		store:           opts.Store,
		users:           opts.Users,
		images:          opts.Images,
		invoices:        opts.Invoices,
		billing:         opts.Billing,
		logger:          opts.Logger,
		pricing:         opts.Pricing,
		supportUsername: opts.SupportUsername,
		unpaidLimit:     opts.UnpaidLimit,
		unpaidWindow:    opts.UnpaidWindow,
		sleep:           time.Sleep,
	}
}

// Run long-polls for updates until the context ends.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().Msg("bot: update loop started")
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := b.updates.GetUpdates(ctx, offset, longPollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn().Err(err).Msg("bot: getUpdates failed")
			b.sleep(pollRetryPause)
			continue
		}
		for _, update := range updates {
			if update.ID >= offset {
				offset = update.ID + 1
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update notify.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}
