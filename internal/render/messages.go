// Package render produces every user-facing text and keyboard. Texts are
// Russian, matching the audience of the product.
package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Russian)

// Price formats a ruble amount.
func Price(amount int) string {
	return printer.Sprintf("%d₽", amount)
}

const (
	ProcessingStarted = "⏳ Обрабатываю изображение... Это может занять до 1 минуты."
	ProcessingFile    = "⏳ Обрабатываю файл..."
	InvalidPhoto      = "❌ Неверный формат фото."
	InvalidFile       = "❌ Файл не является изображением."
	ProcessingFailed  = "❌ Ошибка при обработке фото."
	PaymentFailed     = "Ошибка создания платежа."

	TransparentPreviewCaption = "1️⃣ Прозрачный фон (с водяными знаками)"
	MonoPreviewCaption        = "2️⃣ Черно-белая (с водяными знаками)"

	ImprovedTransparentCaption = "1️⃣ Прозрачный фон (улучшенная, с водяными знаками)"
	ImprovedMonoCaption        = "2️⃣ Черно-белая (улучшенная, с водяными знаками)"

	PaidStdTransparentCaption = "✅ 1️⃣ Стандартная версия - прозрачный фон"
	PaidStdMonoCaption        = "✅ 2️⃣ Стандартная версия - черно-белая"
	PaidImpTransparentCaption = "✨ 3️⃣ Улучшенная версия - прозрачный фон"
	PaidImpMonoCaption        = "✨ 4️⃣ Улучшенная версия - черно-белая"

	PaymentReceived = "✅ Оплата получена! Отправляю фотографии..."
	PayLinkPrompt   = "💳 Перейдите по ссылке для оплаты:"

	ThanksAllVersions = "🎉 Спасибо за оплату! Вы получили все 4 версии вашей фотографии!"
	ThanksTwoVersions = "✅ Спасибо за оплату! Вы получили 2 версии вашей фотографии!"
	DeliveryFailed    = "❌ Произошла ошибка при отправке фотографий. Пожалуйста, свяжитесь с поддержкой."

	InvoiceExpired = "⏰ Время оплаты истекло. Счет больше не действителен.\n" +
		"Нажмите '🔄 Создать новый счет' для повторной оплаты."
	AlreadyDelivered  = "✅ Изображения уже отправлены!"
	PaymentInProgress = "⏳ Оплата в процессе. Подождите."
	ImageNotFound     = "❌ Изображение не найдено!"
)

// Welcome greets a requester on /start.
func Welcome(price int) string {
	return printer.Sprintf("👋 Привет! Я убираю фон с фотографий.\n\n"+
		"📸 Отправьте фото — я пришлю две версии с водяными знаками:\n"+
		"1️⃣ Прозрачный фон\n"+
		"2️⃣ Черно-белая\n\n"+
		"💰 Полные версии без водяных знаков — %d₽", price)
}

// LimitReached tells the requester the unpaid-submission limit was hit.
func LimitReached() string {
	return "⚠️ Вы достигли лимита обработок.\n" +
		"Пожалуйста, попробуйте завтра или оплатите любую фотографию для безлимитной обработки."
}

// ResultOffer is the offer message below the freshly processed previews.
func ResultOffer(price int) string {
	return printer.Sprintf("✅ Готово — 2 версии с водяными знаками!\n\n"+
		"💰 Полные версии без водяных знаков — %d₽\n"+
		"Нажмите кнопку ниже, чтобы оплатить.", price)
}

// ImprovedOffer announces the higher-quality preview.
func ImprovedOffer(price int) string {
	return printer.Sprintf("✨ УЛУЧШЕННАЯ ВЕРСИЯ вашей фотографии!\n\n"+
		"🎯 Более качественная обработка:\n"+
		"• Лучше вырезаны детали\n"+
		"• Четче края\n"+
		"• Профессиональное качество\n\n"+
		"💰 Цена: %d₽\n"+
		"Получите версию БЕЗ водяных знаков!", price)
}

// DiscountOffer announces a discounted price against the base price.
func DiscountOffer(price, basePrice int) string {
	percent := 0
	if basePrice > 0 {
		percent = (basePrice - price) * 100 / basePrice
	}
	return printer.Sprintf("🔥 СПЕЦИАЛЬНАЯ ЦЕНА!\n\n"+
		"💰 Скидка %d%%!\n"+
		"~~%d₽~~ → %d₽\n\n"+
		"📦 Вы получите ВСЕ 4 версии:\n"+
		"• Стандартная + Улучшенная\n"+
		"• Прозрачный фон + Черно-белая\n\n"+
		"⏰ Предложение ограничено!", percent, basePrice, price)
}

// Upsell invites the requester to process another photo after payment.
func Upsell(price int) string {
	return printer.Sprintf("📸 Хотите обработать ещё одну фотографию?\n"+
		"Просто отправьте её в чат 👇\n\n"+
		"💰 Стоимость обработки: %d₽", price)
}

// Support directs the requester to the support contact.
func Support(username string) string {
	return printer.Sprintf("📩 Отправьте фотографию в поддержку %s и опишите проблему.", username)
}

// PendingRemaining reports time left on a running invoice.
func PendingRemaining(minutes, seconds int) string {
	return printer.Sprintf("⏳ Оплата в процессе.\nОсталось времени: %dм %dс", minutes, seconds)
}

// PendingExpired tells the requester the invoice window has closed.
func PendingExpired() string {
	return "⏰ Время оплаты истекло.\nНажмите '🔄 Создать новый счет'."
}
