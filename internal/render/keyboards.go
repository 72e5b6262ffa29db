package render

import (
	"fmt"

	"photobot/internal/domain"
	"photobot/internal/notify"
)

func payButton(kind domain.ActionKind, imageID int64, price int) (notify.InlineKeyboardButton, error) {
	data, err := domain.Action{Kind: kind, ImageID: imageID, Price: price}.Encode()
	if err != nil {
		return notify.InlineKeyboardButton{}, fmt.Errorf("render: %w", err)
	}
	return notify.InlineKeyboardButton{
		Text:         Price(price) + " — Убрать водяные знаки",
		CallbackData: data,
	}, nil
}

func dismissButton() (notify.InlineKeyboardButton, error) {
	data, err := domain.Action{Kind: domain.ActionDismiss}.Encode()
	if err != nil {
		return notify.InlineKeyboardButton{}, fmt.Errorf("render: %w", err)
	}
	return notify.InlineKeyboardButton{Text: "❌ Не нравится", CallbackData: data}, nil
}

// OfferKeyboard is attached to offer messages: a pay button at the given price
// plus a dismiss button. Discounted offers carry a distinct action kind so the
// settle path knows which price was accepted.
func OfferKeyboard(imageID int64, price int, discounted bool) (*notify.InlineKeyboardMarkup, error) {
	kind := domain.ActionPay
	if discounted {
		kind = domain.ActionPayDiscounted
	}
	pay, err := payButton(kind, imageID, price)
	if err != nil {
		return nil, err
	}
	dismiss, err := dismissButton()
	if err != nil {
		return nil, err
	}
	return &notify.InlineKeyboardMarkup{InlineKeyboard: [][]notify.InlineKeyboardButton{
		{pay},
		{dismiss},
	}}, nil
}

// PaymentLinkKeyboard carries the gateway confirmation URL.
func PaymentLinkKeyboard(url string) *notify.InlineKeyboardMarkup {
	return &notify.InlineKeyboardMarkup{InlineKeyboard: [][]notify.InlineKeyboardButton{
		{{Text: "💳 Оплатить", URL: url}},
	}}
}

// ProcessingKeyboard replaces the offer keyboard while an invoice is pending.
// The button reports remaining payment time when pressed.
func ProcessingKeyboard(imageID int64) (*notify.InlineKeyboardMarkup, error) {
	data, err := domain.Action{Kind: domain.ActionCheckPending, ImageID: imageID}.Encode()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return &notify.InlineKeyboardMarkup{InlineKeyboard: [][]notify.InlineKeyboardButton{
		{{Text: "⏳ Оплата в процессе...", CallbackData: data}},
	}}, nil
}

// PaidKeyboard replaces the offer keyboard after settlement.
func PaidKeyboard() (*notify.InlineKeyboardMarkup, error) {
	data, err := domain.Action{Kind: domain.ActionPaidAck}.Encode()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return &notify.InlineKeyboardMarkup{InlineKeyboard: [][]notify.InlineKeyboardButton{
		{{Text: "✅ Оплачено", CallbackData: data}},
	}}, nil
}

// ExpiredKeyboard replaces the offer keyboard after the invoice deadline. The
// renewal button restarts payment at the price of the expired invoice.
func ExpiredKeyboard(imageID int64, price int) (*notify.InlineKeyboardMarkup, error) {
	data, err := domain.Action{Kind: domain.ActionPayDiscounted, ImageID: imageID, Price: price}.Encode()
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	dismiss, err := dismissButton()
	if err != nil {
		return nil, err
	}
	return &notify.InlineKeyboardMarkup{InlineKeyboard: [][]notify.InlineKeyboardButton{
		{{Text: "🔄 Создать новый счет", CallbackData: data}},
		{dismiss},
	}}, nil
}
