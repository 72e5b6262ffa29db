package bot

import (
	"context"

	"photobot/internal/billing"
	"photobot/internal/domain"
	"photobot/internal/notify"
	"photobot/internal/render"
)

func (b *Bot) handleCallback(ctx context.Context, cb *notify.CallbackQuery) {
	action, err := domain.DecodeAction(cb.Data)
	if err != nil {
		b.logger.Warn().Err(err).Str("data", cb.Data).Msg("bot: unreadable callback")
		b.answer(ctx, cb.ID, "Эта кнопка устарела.", true)
		return
	}
	if cb.Message == nil || cb.From == nil {
		b.answer(ctx, cb.ID, "", false)
		return
	}

	switch action.Kind {
	case domain.ActionPay, domain.ActionPayDiscounted:
		b.startPayment(ctx, cb, action)
	case domain.ActionCheckPending:
		b.checkPending(ctx, cb, action)
	case domain.ActionDismiss:
		b.notify(ctx, cb.Message.Chat.ID, render.Support(b.supportUsername))
		b.answer(ctx, cb.ID, "", false)
	case domain.ActionPaidAck:
		b.answer(ctx, cb.ID, render.AlreadyDelivered, true)
	}
}

// startPayment creates the invoice and hands the rest of the lifecycle to the
// polling goroutine.
func (b *Bot) startPayment(ctx context.Context, cb *notify.CallbackQuery, action domain.Action) {
	chatID := cb.Message.Chat.ID

	img, err := b.images.GetByID(ctx, action.ImageID)
	if err != nil {
		b.answer(ctx, cb.ID, render.ImageNotFound, true)
		return
	}
	if img.Paid {
		b.answer(ctx, cb.ID, render.AlreadyDelivered, true)
		return
	}

	amount := action.Price
	if amount <= 0 {
		amount = b.pricing.Base
	}

	user, err := b.users.GetOrCreate(ctx, cb.From.ID, cb.From.Username, cb.From.FirstName)
	if err != nil {
		b.logger.Error().Err(err).Msg("bot: user lookup failed")
		b.answer(ctx, cb.ID, render.PaymentFailed, true)
		return
	}

	// Freeze the offer button while the invoice runs.
	if markup, err := render.ProcessingKeyboard(img.ID); err == nil {
		if err := b.channel.EditReplyMarkup(ctx, chatID, cb.Message.ID, markup); err != nil {
			b.logger.Debug().Err(err).Msg("bot: keyboard freeze failed")
		}
	}

	inv, payURL, err := b.billing.CreateInvoice(ctx, user, img.ID, amount)
	if err != nil {
		b.logger.Error().Err(err).Msg("bot: invoice creation failed")
		b.notify(ctx, chatID, render.PaymentFailed)
		b.answer(ctx, cb.ID, render.PaymentFailed, true)
		return
	}

	payMsgID, err := b.channel.SendMessage(ctx, chatID, render.PayLinkPrompt, render.PaymentLinkKeyboard(payURL))
	if err != nil {
		b.logger.Error().Err(err).Msg("bot: payment link send failed")
	}
	b.answer(ctx, cb.ID, "", false)

	go b.billing.Run(ctx, billing.Poll{
		RequesterID:    chatID,
		ImageKey:       img.Key,
		Invoice:        inv,
		PayMessageID:   payMsgID,
		OfferMessageID: cb.Message.ID,
	})
}

// checkPending answers the frozen button with the time left on the invoice.
func (b *Bot) checkPending(ctx context.Context, cb *notify.CallbackQuery, action domain.Action) {
	inv, err := b.invoices.LatestForImage(ctx, action.ImageID)
	if err != nil {
		b.answer(ctx, cb.ID, render.ImageNotFound, true)
		return
	}
	if inv.Status == domain.InvoiceStatusSucceeded {
		b.answer(ctx, cb.ID, render.AlreadyDelivered, true)
		return
	}
	remaining := b.billing.Remaining(inv)
	if remaining <= 0 {
		if markup, err := render.ExpiredKeyboard(action.ImageID, inv.Amount); err == nil {
			if err := b.channel.EditReplyMarkup(ctx, cb.Message.Chat.ID, cb.Message.ID, markup); err != nil {
				b.logger.Debug().Err(err).Msg("bot: expired keyboard swap failed")
			}
		}
		b.answer(ctx, cb.ID, render.PendingExpired(), true)
		return
	}
	minutes := int(remaining.Minutes())
	seconds := int(remaining.Seconds()) % 60
	b.answer(ctx, cb.ID, render.PendingRemaining(minutes, seconds), true)
}

func (b *Bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := b.channel.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		b.logger.Debug().Err(err).Msg("bot: callback answer failed")
	}
}
