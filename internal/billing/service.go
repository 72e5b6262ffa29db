package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"photobot/internal/domain"
	"photobot/internal/infra"
	"photobot/internal/notify"
	"photobot/internal/render"
	"photobot/internal/storage"
)

const (
	createAttempts = 3
	createBackoff  = time.Second
	upsellPause    = 2 * time.Second
)

// ServiceOptions wires the invoice lifecycle service.
type ServiceOptions struct {
	Gateway  Gateway
	Invoices domain.InvoiceRepository
	Images   domain.ImageRepository
	Channel  notify.Channel
	Store    storage.ArtifactStore
	Logger   infra.Logger

	ReturnURL    string
	Pricing      domain.Pricing
	PollInterval time.Duration
	PollDeadline time.Duration
}

// Service owns invoice creation and the per-invoice polling lifecycle.
type Service struct {
	gateway  Gateway
	invoices domain.InvoiceRepository
	images   domain.ImageRepository
	channel  notify.Channel
	store    storage.ArtifactStore
	logger   infra.Logger

	returnURL    string
	pricing      domain.Pricing
	pollInterval time.Duration
	pollDeadline time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewService constructs the lifecycle service.
func NewService(opts ServiceOptions) *Service {
	return &Service{
		gateway:      opts.Gateway,
		invoices:     opts.Invoices,
		images:       opts.Images,
		channel:      opts.Channel,
		store:        opts.Store,
		logger:       opts.Logger,
		returnURL:    opts.ReturnURL,
		pricing:      opts.Pricing,
		pollInterval: opts.PollInterval,
		pollDeadline: opts.PollDeadline,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// CreateInvoice registers a payment at the gateway and persists its record.
// The gateway call is retried up to three times under a single idempotency
// key, so at most one payment can result. Exactly one invoice row is written,
// and only after the gateway accepted the payment.
func (s *Service) CreateInvoice(ctx context.Context, user *domain.User, imageID int64, amount int) (*domain.Invoice, string, error) {
	key := uuid.NewString()
	req := CreateRequest{
		Amount:      amount,
		Description: fmt.Sprintf("Обработка фотографии, %s", render.Price(amount)),
		ReturnURL:   s.returnURL,
		Metadata: map[string]string{
			"image_id": strconv.FormatInt(imageID, 10),
			"user_id":  strconv.FormatInt(user.TelegramID, 10),
		},
		IdempotencyKey: key,
	}

	var created CreatedInvoice
	var err error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		created, err = s.gateway.CreateInvoice(ctx, req)
		if err == nil {
			break
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("billing: invoice creation failed")
		if attempt < createAttempts && !s.sleep(ctx, createBackoff) {
			return nil, "", ctx.Err()
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: create invoice: %v", domain.ErrGatewayFailure, err)
	}

	inv := &domain.Invoice{
		UserID:    user.ID,
		ImageID:   imageID,
		InvoiceID: created.ID,
		Amount:    amount,
		Status:    domain.InvoiceStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, "", fmt.Errorf("billing: persist invoice: %w", err)
	}
	return inv, created.ConfirmationURL, nil
}

// Poll names everything one polling loop needs: where to report, which image
// the invoice pays for, and the two messages whose UI the loop mutates.
type Poll struct {
	RequesterID    int64
	ImageKey       string
	Invoice        *domain.Invoice
	PayMessageID   int64
	OfferMessageID int64
}

// Run polls the invoice until it settles or its deadline passes. Each tick
// first sleeps the interval, then checks elapsed time against the deadline,
// then queries the gateway; at the boundary tick expiry wins even if the
// gateway would have reported success. UI updates along the way are
// best-effort; settlement and delivery are not.
func (s *Service) Run(ctx context.Context, p Poll) {
	logger := s.logger.With().
		Str("invoice_id", p.Invoice.InvoiceID).
		Int64("requester", p.RequesterID).
		Logger()

	for {
		if !s.sleep(ctx, s.pollInterval) {
			logger.Info().Msg("billing: poll abandoned on shutdown")
			return
		}
		if s.now().Sub(p.Invoice.CreatedAt) >= s.pollDeadline {
			s.expire(ctx, p, logger)
			return
		}

		status, err := s.gateway.Status(ctx, p.Invoice.InvoiceID)
		if err != nil {
			logger.Warn().Err(err).Msg("billing: status check failed")
			continue
		}
		if status != domain.InvoiceStatusSucceeded {
			continue
		}
		if err := s.settle(ctx, p, logger); err != nil {
			logger.Error().Err(err).Msg("billing: settlement failed, retrying next tick")
			continue
		}
		return
	}
}

func (s *Service) settle(ctx context.Context, p Poll, logger infra.Logger) error {
	changed, err := s.invoices.MarkSucceeded(ctx, p.Invoice.InvoiceID)
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}

	img, err := s.images.GetByKey(ctx, p.ImageKey)
	if err != nil {
		logger.Error().Err(err).Str("image_key", p.ImageKey).Msg("billing: settled image missing")
		s.notifyDeliveryFailure(ctx, p.RequesterID, logger)
		return nil
	}
	if !changed && img.Paid {
		// Another observer already settled and paid this invoice; never
		// deliver twice.
		logger.Info().Msg("billing: invoice already settled")
		return nil
	}

	if err := s.channel.EditMessageText(ctx, p.RequesterID, p.PayMessageID, render.PaymentReceived); err != nil {
		logger.Debug().Err(err).Msg("billing: payment message edit failed")
	}

	// The terminal flag goes down before anything is sent: a failure here is
	// retried next tick (the unpaid image re-enters this branch), whereas a
	// delivered-but-unpaid image would keep getting swept forever.
	if err := s.images.MarkPaid(ctx, p.ImageKey); err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}

	if err := s.deliver(ctx, p.RequesterID, img); err != nil {
		logger.Error().Err(err).Msg("billing: delivery failed")
		s.notifyDeliveryFailure(ctx, p.RequesterID, logger)
	}

	if markup, err := render.PaidKeyboard(); err == nil {
		if err := s.channel.EditReplyMarkup(ctx, p.RequesterID, p.OfferMessageID, markup); err != nil {
			logger.Debug().Err(err).Msg("billing: offer keyboard swap failed")
		}
	}
	if err := s.channel.DeleteMessage(ctx, p.RequesterID, p.PayMessageID); err != nil {
		logger.Debug().Err(err).Msg("billing: payment message delete failed")
	}

	if s.sleep(ctx, upsellPause) {
		if _, err := s.channel.SendMessage(ctx, p.RequesterID, render.Upsell(s.pricing.Base), nil); err != nil {
			logger.Debug().Err(err).Msg("billing: upsell send failed")
		}
	}
	logger.Info().Int("amount", p.Invoice.Amount).Msg("billing: invoice settled")
	return nil
}

// deliver sends every clean variant the image has. Watermarked refs never
// leave the store on this path.
func (s *Service) deliver(ctx context.Context, chatID int64, img *domain.Image) error {
	if _, err := s.store.Send(ctx, img.StdTransparent, chatID, render.PaidStdTransparentCaption); err != nil {
		return err
	}
	if _, err := s.store.Send(ctx, img.StdMono, chatID, render.PaidStdMonoCaption); err != nil {
		return err
	}
	if !img.HasImproved() {
		_, err := s.channel.SendMessage(ctx, chatID, render.ThanksTwoVersions, nil)
		return err
	}
	if _, err := s.store.Send(ctx, img.ImpTransparent, chatID, render.PaidImpTransparentCaption); err != nil {
		return err
	}
	if _, err := s.store.Send(ctx, img.ImpMono, chatID, render.PaidImpMonoCaption); err != nil {
		return err
	}
	_, err := s.channel.SendMessage(ctx, chatID, render.ThanksAllVersions, nil)
	return err
}

func (s *Service) notifyDeliveryFailure(ctx context.Context, chatID int64, logger infra.Logger) {
	if _, err := s.channel.SendMessage(ctx, chatID, render.DeliveryFailed, nil); err != nil {
		logger.Debug().Err(err).Msg("billing: failure notice send failed")
	}
}

func (s *Service) expire(ctx context.Context, p Poll, logger infra.Logger) {
	if err := s.channel.DeleteMessage(ctx, p.RequesterID, p.PayMessageID); err != nil {
		logger.Debug().Err(err).Msg("billing: expired payment message delete failed")
	}
	if markup, err := render.ExpiredKeyboard(p.Invoice.ImageID, p.Invoice.Amount); err == nil {
		if err := s.channel.EditReplyMarkup(ctx, p.RequesterID, p.OfferMessageID, markup); err != nil {
			logger.Debug().Err(err).Msg("billing: expired keyboard swap failed")
		}
	}
	if _, err := s.channel.SendMessage(ctx, p.RequesterID, render.InvoiceExpired, nil); err != nil {
		logger.Warn().Err(err).Msg("billing: expiry notice send failed")
	}
	logger.Info().Msg("billing: invoice expired")
}

// Remaining reports how long an invoice can still be paid. Zero or negative
// means expired.
func (s *Service) Remaining(inv *domain.Invoice) time.Duration {
	return s.pollDeadline - s.now().Sub(inv.CreatedAt)
}
