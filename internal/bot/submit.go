package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"photobot/internal/domain"
	"photobot/internal/notify"
	"photobot/internal/pipeline"
	"photobot/internal/render"
)

func (b *Bot) handleMessage(ctx context.Context, msg *notify.Message) {
	chatID := msg.Chat.ID
	switch {
	case strings.HasPrefix(msg.Text, "/start"):
		if _, err := b.channel.SendMessage(ctx, chatID, render.Welcome(b.pricing.Base), nil); err != nil {
			b.logger.Warn().Err(err).Msg("bot: welcome send failed")
		}
	case len(msg.Photo) > 0:
		// Variants are listed smallest first; take the largest.
		photo := msg.Photo[len(msg.Photo)-1]
		b.enqueueSubmission(ctx, msg, photo.FileID, render.ProcessingStarted)
	case msg.Document != nil:
		if !pipeline.ValidImageFile(msg.Document.FileName, msg.Document.MimeType) {
			if _, err := b.channel.SendMessage(ctx, chatID, render.InvalidFile, nil); err != nil {
				b.logger.Warn().Err(err).Msg("bot: rejection send failed")
			}
			return
		}
		b.enqueueSubmission(ctx, msg, msg.Document.FileID, render.ProcessingFile)
	}
}

// enqueueSubmission acknowledges the submission immediately and queues the
// heavy work on the requester's line.
func (b *Bot) enqueueSubmission(ctx context.Context, msg *notify.Message, fileRef, ack string) {
	chatID := msg.Chat.ID
	from := msg.From
	if from == nil {
		from = &notify.UserInfo{ID: chatID}
	}

	statusID, err := b.channel.SendMessage(ctx, chatID, ack, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("bot: ack send failed")
	}

	b.queue.Enqueue(ctx, chatID, func(ctx context.Context) error {
		defer func() {
			if statusID != 0 {
				if err := b.channel.DeleteMessage(ctx, chatID, statusID); err != nil {
					b.logger.Debug().Err(err).Msg("bot: status message delete failed")
				}
			}
		}()
		return b.processSubmission(ctx, chatID, from, fileRef)
	})
}

// processSubmission is the queued unit of work: limit check, download,
// transform, store, persist, offer.
func (b *Bot) processSubmission(ctx context.Context, chatID int64, from *notify.UserInfo, fileRef string) error {
	allowed, err := b.allowSubmission(ctx, from.ID)
	if err != nil {
		b.logger.Warn().Err(err).Int64("requester_id", from.ID).Msg("bot: limit check failed, letting submission through")
	} else if !allowed {
		_, err := b.channel.SendMessage(ctx, chatID, render.LimitReached(), nil)
		return err
	}

	raw, err := b.channel.DownloadFile(ctx, fileRef)
	if err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("download submission: %w", err)
	}
	if !pipeline.ValidImageBytes(raw) {
		b.notify(ctx, chatID, render.InvalidPhoto)
		return nil
	}

	transparent, mono, err := b.pipeline.Process(ctx, raw, domain.TierStandard)
	if err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("standard transform: %w", err)
	}
	transparentWM, err := pipeline.Watermark(transparent)
	if err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("watermark transparent: %w", err)
	}
	monoWM, err := pipeline.Watermark(mono)
	if err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("watermark mono: %w", err)
	}

	key := uuid.NewString()
	img := &domain.Image{Key: key}
	if img.Original, err = b.store.Put(ctx, raw, key+"_original"); err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("store original: %w", err)
	}
	if img.StdTransparent, err = b.store.Put(ctx, transparent, key+"_transparent"); err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("store transparent: %w", err)
	}
	if img.StdMono, err = b.store.Put(ctx, mono, key+"_mono"); err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("store mono: %w", err)
	}
	if img.StdTransparentWM, err = b.store.Put(ctx, transparentWM, key+"_transparent_wm"); err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("store transparent wm: %w", err)
	}
	if img.StdMonoWM, err = b.store.Put(ctx, monoWM, key+"_mono_wm"); err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("store mono wm: %w", err)
	}

	user, err := b.users.GetOrCreate(ctx, from.ID, from.Username, from.FirstName)
	if err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("get or create user: %w", err)
	}
	img.UserID = user.ID
	if err := b.images.Create(ctx, img); err != nil {
		b.notify(ctx, chatID, render.ProcessingFailed)
		return fmt.Errorf("persist image: %w", err)
	}

	var ids []int64
	id, err := b.store.Send(ctx, img.StdTransparentWM, chatID, render.TransparentPreviewCaption)
	if err != nil {
		return fmt.Errorf("send preview: %w", err)
	}
	ids = append(ids, id)
	id, err = b.store.Send(ctx, img.StdMonoWM, chatID, render.MonoPreviewCaption)
	if err != nil {
		return fmt.Errorf("send preview: %w", err)
	}
	ids = append(ids, id)

	markup, err := render.OfferKeyboard(img.ID, b.pricing.Base, false)
	if err != nil {
		return err
	}
	id, err = b.channel.SendMessage(ctx, chatID, render.ResultOffer(b.pricing.Base), markup)
	if err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	ids = append(ids, id)

	if err := b.images.SaveStageMessageIDs(ctx, key, domain.StageNew, ids); err != nil {
		b.logger.Warn().Err(err).Str("image_key", key).Msg("bot: message id save failed")
	}
	b.logger.Info().Str("image_key", key).Int64("requester_id", from.ID).Msg("bot: submission processed")
	return nil
}

// allowSubmission enforces the unpaid-submission limit. Requesters with any
// settled invoice are exempt.
func (b *Bot) allowSubmission(ctx context.Context, telegramID int64) (bool, error) {
	paidBefore, err := b.users.HasSucceededInvoice(ctx, telegramID)
	if err != nil {
		return true, err
	}
	if paidBefore {
		return true, nil
	}
	count, err := b.images.CountUnpaidSince(ctx, telegramID, b.unpaidWindow)
	if err != nil {
		return true, err
	}
	return count < b.unpaidLimit, nil
}

func (b *Bot) notify(ctx context.Context, chatID int64, text string) {
	if _, err := b.channel.SendMessage(ctx, chatID, text, nil); err != nil {
		b.logger.Debug().Err(err).Msg("bot: notice send failed")
	}
}
