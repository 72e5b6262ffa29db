// Package sweep runs the discount escalation over unpaid images. Each pass
// walks every unpaid image once and performs at most one stage transition per
// image; a longer-overdue image catches up across subsequent passes rather
// than jumping stages.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photobot/internal/domain"
	"photobot/internal/infra"
	"photobot/internal/notify"
	"photobot/internal/pipeline"
	"photobot/internal/render"
	"photobot/internal/storage"
)

// Gates holds the age thresholds for each escalation step, measured from
// image creation.
type Gates struct {
	ImprovedAfter    time.Duration
	Discount290After time.Duration
	Discount190After time.Duration
	Discount99After  time.Duration
}

// Options wires a Sweeper.
type Options struct {
	Images   domain.ImageRepository
	Pipeline *pipeline.Pipeline
	Store    storage.ArtifactStore
	Channel  notify.Channel
	Logger   infra.Logger

	Pricing      domain.Pricing
	Gates        Gates
	DeletePacing time.Duration
	ImagePacing  time.Duration
}

type preview struct {
	ref     domain.ArtifactRef
	caption string
}

// Sweeper drives escalation passes.
type Sweeper struct {
	images   domain.ImageRepository
	pipeline *pipeline.Pipeline
	store    storage.ArtifactStore
	channel  notify.Channel
	logger   infra.Logger

	pricing      domain.Pricing
	gates        Gates
	deletePacing time.Duration
	imagePacing  time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// New constructs a Sweeper.
func New(opts Options) *Sweeper {
	return &Sweeper{
		images:       opts.Images,
		pipeline:     opts.Pipeline,
		store:        opts.Store,
		channel:      opts.Channel,
		logger:       opts.Logger,
		pricing:      opts.Pricing,
		gates:        opts.Gates,
		deletePacing: opts.DeletePacing,
		imagePacing:  opts.ImagePacing,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// Run executes passes on the given cadence until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunPass(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep: pass failed")
			}
		}
	}
}

// RunPass walks every unpaid image once. Per-image failures are logged and
// never abort the pass.
func (s *Sweeper) RunPass(ctx context.Context) error {
	items, err := s.images.ListUnpaid(ctx)
	if err != nil {
		return fmt.Errorf("sweep: list unpaid: %w", err)
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.sweepOne(ctx, item) {
			s.sleep(s.imagePacing)
		}
	}
	return nil
}

// sweepOne performs at most one transition for the image and reports whether
// an action was attempted.
func (s *Sweeper) sweepOne(ctx context.Context, item domain.UnpaidImage) bool {
	logger := s.logger.With().Str("image_key", item.Key).Logger()

	// Re-fetch: payment may have landed since the pass listed the image.
	fresh, err := s.images.GetByKey(ctx, item.Key)
	if err != nil {
		logger.Warn().Err(err).Msg("sweep: refetch failed")
		return false
	}
	if fresh.Paid || fresh.Stage.Terminal() {
		return false
	}

	elapsed := s.now().Sub(fresh.CreatedAt)
	var next domain.Stage
	switch fresh.Stage {
	case domain.StageNew:
		if elapsed < s.gates.ImprovedAfter {
			return false
		}
		next = domain.StageImprovedOffered
	case domain.StageImprovedOffered:
		if elapsed < s.gates.Discount290After {
			return false
		}
		next = domain.StageDiscount290Offered
	case domain.StageDiscount290Offered:
		if elapsed < s.gates.Discount190After {
			return false
		}
		next = domain.StageDiscount190Offered
	case domain.StageDiscount190Offered:
		if elapsed < s.gates.Discount99After {
			return false
		}
		next = domain.StageDiscount99Offered
	default:
		return false
	}

	if next == domain.StageImprovedOffered {
		err = s.offerImproved(ctx, item.RequesterID, fresh)
	} else {
		err = s.offerDiscount(ctx, item.RequesterID, fresh, next)
	}
	if err != nil {
		logger.Warn().Err(err).Str("stage", next.String()).Msg("sweep: escalation failed")
	} else {
		logger.Info().Str("stage", next.String()).Msg("sweep: escalated")
	}
	return true
}

// offerImproved re-runs the transformation at the improved tier, stores all
// four artifacts, and shows the watermarked pair with an offer at the base
// price. The stage flag moves only after everything above it worked.
func (s *Sweeper) offerImproved(ctx context.Context, chatID int64, img *domain.Image) error {
	raw, err := s.store.Get(ctx, img.Original)
	if err != nil {
		return fmt.Errorf("fetch original: %w", err)
	}
	transparent, mono, err := s.pipeline.Process(ctx, raw, domain.TierImproved)
	if err != nil {
		return fmt.Errorf("improved transform: %w", err)
	}
	transparentWM, err := pipeline.Watermark(transparent)
	if err != nil {
		return fmt.Errorf("watermark transparent: %w", err)
	}
	monoWM, err := pipeline.Watermark(mono)
	if err != nil {
		return fmt.Errorf("watermark mono: %w", err)
	}

	var refs domain.ImprovedRefs
	if refs.Transparent, err = s.store.Put(ctx, transparent, img.Key+"_improved_transparent"); err != nil {
		return fmt.Errorf("store improved transparent: %w", err)
	}
	if refs.Mono, err = s.store.Put(ctx, mono, img.Key+"_improved_mono"); err != nil {
		return fmt.Errorf("store improved mono: %w", err)
	}
	if refs.TransparentWM, err = s.store.Put(ctx, transparentWM, img.Key+"_improved_transparent_wm"); err != nil {
		return fmt.Errorf("store improved transparent wm: %w", err)
	}
	if refs.MonoWM, err = s.store.Put(ctx, monoWM, img.Key+"_improved_mono_wm"); err != nil {
		return fmt.Errorf("store improved mono wm: %w", err)
	}
	if err := s.images.SaveImprovedRefs(ctx, img.Key, refs); err != nil {
		return fmt.Errorf("save improved refs: %w", err)
	}

	var ids []int64
	id, err := s.store.Send(ctx, refs.TransparentWM, chatID, render.ImprovedTransparentCaption)
	if err != nil {
		return fmt.Errorf("send improved preview: %w", err)
	}
	ids = append(ids, id)
	id, err = s.store.Send(ctx, refs.MonoWM, chatID, render.ImprovedMonoCaption)
	if err != nil {
		return fmt.Errorf("send improved preview: %w", err)
	}
	ids = append(ids, id)

	markup, err := render.OfferKeyboard(img.ID, s.pricing.Base, false)
	if err != nil {
		return err
	}
	id, err = s.channel.SendMessage(ctx, chatID, render.ImprovedOffer(s.pricing.Base), markup)
	if err != nil {
		return fmt.Errorf("send improved offer: %w", err)
	}
	ids = append(ids, id)

	if err := s.images.SaveStageMessageIDs(ctx, img.Key, domain.StageImprovedOffered, ids); err != nil {
		return fmt.Errorf("save message ids: %w", err)
	}
	return s.markSent(ctx, img.Key, domain.StageImprovedOffered)
}

// offerDiscount shows the combined watermarked previews again with a
// discounted offer, then retires the superseded offers' messages. The
// discounted price buys every version, so the standard pair always goes out
// and the improved pair follows when it exists.
func (s *Sweeper) offerDiscount(ctx context.Context, chatID int64, img *domain.Image, next domain.Stage) error {
	price := s.pricing.PriceForStage(next)

	previews := []preview{
		{img.StdTransparentWM, render.TransparentPreviewCaption},
		{img.StdMonoWM, render.MonoPreviewCaption},
	}
	if img.HasImproved() {
		previews = append(previews,
			preview{img.ImpTransparentWM, render.ImprovedTransparentCaption},
			preview{img.ImpMonoWM, render.ImprovedMonoCaption},
		)
	}

	var ids []int64
	for _, p := range previews {
		id, err := s.store.Send(ctx, p.ref, chatID, p.caption)
		if err != nil {
			return fmt.Errorf("send discount preview: %w", err)
		}
		ids = append(ids, id)
	}

	markup, err := render.OfferKeyboard(img.ID, price, true)
	if err != nil {
		return err
	}
	id, err := s.channel.SendMessage(ctx, chatID, render.DiscountOffer(price, s.pricing.Base), markup)
	if err != nil {
		return fmt.Errorf("send discount offer: %w", err)
	}
	ids = append(ids, id)

	s.deleteStageMessages(ctx, chatID, img.Key, img.Stage)
	// The first discount supersedes two live offers at once: the improved one
	// and the original base-price one. Later discounts only replace their
	// immediate predecessor.
	if next == domain.StageDiscount290Offered {
		s.deleteStageMessages(ctx, chatID, img.Key, domain.StageNew)
	}

	if err := s.images.SaveStageMessageIDs(ctx, img.Key, next, ids); err != nil {
		return fmt.Errorf("save message ids: %w", err)
	}
	return s.markSent(ctx, img.Key, next)
}

func (s *Sweeper) markSent(ctx context.Context, key string, stage domain.Stage) error {
	err := s.images.MarkStageSent(ctx, key, stage)
	if errors.Is(err, domain.ErrImagePaid) {
		// Payment landed between the refetch and the flag write. The extra
		// offer is harmless; the flag stays untouched.
		s.logger.Info().Str("image_key", key).Msg("sweep: image paid mid-escalation")
		return nil
	}
	return err
}

// deleteStageMessages retires a previous stage's messages best-effort, paced
// to stay under the channel's rate limits.
func (s *Sweeper) deleteStageMessages(ctx context.Context, chatID int64, key string, stage domain.Stage) {
	ids, err := s.images.StageMessageIDs(ctx, key, stage)
	if err != nil {
		s.logger.Debug().Err(err).Str("image_key", key).Msg("sweep: stage message ids unavailable")
		return
	}
	for _, id := range ids {
		if err := s.channel.DeleteMessage(ctx, chatID, id); err != nil {
			s.logger.Debug().Err(err).Int64("message_id", id).Msg("sweep: message delete failed")
		}
		s.sleep(s.deletePacing)
	}
}
