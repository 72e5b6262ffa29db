package bot

import (
	"bytes"
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobot/internal/billing"
	"photobot/internal/domain"
	"photobot/internal/notify"
	"photobot/internal/pipeline"
	"photobot/internal/queue"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 50, 40)), imaging.PNG))
	return buf.Bytes()
}

type fakeTransformer struct {
	result []byte
}

func (f *fakeTransformer) RemoveBackground(ctx context.Context, img []byte, tier domain.Tier) ([]byte, error) {
	return f.result, nil
}

type fakeChannel struct {
	mu        sync.Mutex
	files     map[string][]byte
	messages  []string
	markups   []*notify.InlineKeyboardMarkup
	deleted   []int64
	answers   []string
	alertUsed bool
	nextMsgID int64
}

func (c *fakeChannel) SendMessage(ctx context.Context, chatID int64, text string, markup *notify.InlineKeyboardMarkup) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	c.nextMsgID++
	return c.nextMsgID, nil
}
func (c *fakeChannel) SendDocument(ctx context.Context, chatID int64, doc notify.Document) (notify.SentDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextMsgID++
	return notify.SentDocument{MessageID: c.nextMsgID, FileID: "file-" + doc.Name}, nil
}
func (c *fakeChannel) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return nil
}
func (c *fakeChannel) EditReplyMarkup(ctx context.Context, chatID, messageID int64, markup *notify.InlineKeyboardMarkup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markups = append(c.markups, markup)
	return nil
}
func (c *fakeChannel) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, messageID)
	return nil
}
func (c *fakeChannel) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers = append(c.answers, text)
	c.alertUsed = c.alertUsed || showAlert
	return nil
}
func (c *fakeChannel) DownloadFile(ctx context.Context, fileRef string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.files[fileRef]; ok {
		return data, nil
	}
	return nil, domain.ErrNotFound
}

func (c *fakeChannel) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

type fakeUsers struct {
	mu      sync.Mutex
	hasPaid bool
}

func (f *fakeUsers) GetOrCreate(ctx context.Context, telegramID int64, username, firstName string) (*domain.User, error) {
	return &domain.User{ID: 1, TelegramID: telegramID, Username: username}, nil
}
func (f *fakeUsers) HasSucceededInvoice(ctx context.Context, telegramID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasPaid, nil
}
func (f *fakeUsers) Stats(ctx context.Context) (*domain.UserStats, error) {
	return &domain.UserStats{}, nil
}

type fakeImages struct {
	mu          sync.Mutex
	created     []*domain.Image
	unpaidCount int
	messageIDs  map[domain.Stage][]int64
}

func (f *fakeImages) Create(ctx context.Context, img *domain.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img.ID = int64(len(f.created) + 1)
	img.CreatedAt = time.Now()
	f.created = append(f.created, img)
	return nil
}
func (f *fakeImages) GetByKey(ctx context.Context, key string) (*domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.created {
		if img.Key == key {
			copied := *img
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (f *fakeImages) GetByID(ctx context.Context, id int64) (*domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range f.created {
		if img.ID == id {
			copied := *img
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (f *fakeImages) MarkPaid(ctx context.Context, key string) error { return nil }
func (f *fakeImages) SaveImprovedRefs(ctx context.Context, key string, refs domain.ImprovedRefs) error {
	return nil
}
func (f *fakeImages) SaveStageMessageIDs(ctx context.Context, key string, stage domain.Stage, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messageIDs == nil {
		f.messageIDs = map[domain.Stage][]int64{}
	}
	f.messageIDs[stage] = ids
	return nil
}
func (f *fakeImages) StageMessageIDs(ctx context.Context, key string, stage domain.Stage) ([]int64, error) {
	return nil, nil
}
func (f *fakeImages) MarkStageSent(ctx context.Context, key string, stage domain.Stage) error {
	return nil
}
func (f *fakeImages) CountUnpaidSince(ctx context.Context, telegramID int64, window time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unpaidCount, nil
}
func (f *fakeImages) ListUnpaid(ctx context.Context) ([]domain.UnpaidImage, error) {
	return nil, nil
}
func (f *fakeImages) CountUnpaid(ctx context.Context) (int64, error) { return 0, nil }

type fakeInvoices struct {
	mu      sync.Mutex
	created []*domain.Invoice
}

func (f *fakeInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv.ID = int64(len(f.created) + 1)
	f.created = append(f.created, inv)
	return nil
}
func (f *fakeInvoices) MarkSucceeded(ctx context.Context, invoiceID string) (bool, error) {
	return false, nil
}
func (f *fakeInvoices) LatestForImage(ctx context.Context, imageID int64) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil, domain.ErrNotFound
	}
	return f.created[len(f.created)-1], nil
}

type fakeGateway struct{}

func (fakeGateway) CreateInvoice(ctx context.Context, req billing.CreateRequest) (billing.CreatedInvoice, error) {
	return billing.CreatedInvoice{ID: "pay-1", ConfirmationURL: "https://pay.example/1"}, nil
}
func (fakeGateway) Status(ctx context.Context, invoiceID string) (domain.InvoiceStatus, error) {
	return domain.InvoiceStatusPending, nil
}

type fakeStore struct {
	mu    sync.Mutex
	puts  []string
	sends []domain.ArtifactRef
}

func (s *fakeStore) Put(ctx context.Context, data []byte, label string) (domain.ArtifactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, label)
	return domain.ArtifactRef("ref-" + label), nil
}
func (s *fakeStore) Send(ctx context.Context, ref domain.ArtifactRef, chatID int64, caption string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, ref)
	return int64(500 + len(s.sends)), nil
}
func (s *fakeStore) Get(ctx context.Context, ref domain.ArtifactRef) ([]byte, error) {
	return nil, domain.ErrNotFound
}

type botFixture struct {
	bot      *Bot
	channel  *fakeChannel
	users    *fakeUsers
	images   *fakeImages
	invoices *fakeInvoices
	store    *fakeStore
	queue    *queue.Dispatcher
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	png := testPNG(t)
	f := &botFixture{
		channel:  &fakeChannel{files: map[string][]byte{"photo-1": png}},
		users:    &fakeUsers{},
		images:   &fakeImages{},
		invoices: &fakeInvoices{},
		store:    &fakeStore{},
		queue:    queue.New(zerolog.Nop(), nil),
	}
	billingSvc := billing.NewService(billing.ServiceOptions{
		Gateway:      fakeGateway{},
		Invoices:     f.invoices,
		Images:       f.images,
		Channel:      f.channel,
		Store:        f.store,
		Logger:       zerolog.Nop(),
		Pricing:      domain.DefaultPricing(),
		PollInterval: time.Millisecond,
		PollDeadline: 2 * time.Millisecond,
	})
	f.bot = New(Options{
		Channel:         f.channel,
		Queue:           f.queue,
		Pipeline:        pipeline.New(&fakeTransformer{result: png}, zerolog.Nop()),
		Store:           f.store,
		Users:           f.users,
		Images:          f.images,
		Invoices:        f.invoices,
		Billing:         billingSvc,
		Logger:          zerolog.Nop(),
		Pricing:         domain.DefaultPricing(),
		SupportUsername: "@support",
		UnpaidLimit:     20,
		UnpaidWindow:    24 * time.Hour,
	})
	return f
}

func photoMessage() *notify.Message {
	return &notify.Message{
		ID:   10,
		From: &notify.UserInfo{ID: 42, Username: "alice"},
		Chat: notify.Chat{ID: 42},
		Photo: []notify.PhotoSize{
			{FileID: "photo-small", Width: 90},
			{FileID: "photo-1", Width: 800},
		},
	}
}

func TestPhotoSubmissionProducesOffer(t *testing.T) {
	f := newBotFixture(t)

	f.bot.handleMessage(context.Background(), photoMessage())
	f.queue.Wait()

	f.images.mu.Lock()
	require.Len(t, f.images.created, 1)
	img := f.images.created[0]
	f.images.mu.Unlock()
	assert.NotEmpty(t, img.Key)
	assert.NotEmpty(t, img.Original)
	assert.NotEmpty(t, img.StdTransparentWM)
	assert.Equal(t, domain.StageNew, img.Stage)

	f.store.mu.Lock()
	assert.Len(t, f.store.puts, 5)
	assert.Len(t, f.store.sends, 2)
	f.store.mu.Unlock()

	messages := f.channel.sentMessages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "Обрабатываю")
	assert.Contains(t, messages[1], "490")

	// Previews plus the offer are recorded for later retirement.
	f.images.mu.Lock()
	assert.Len(t, f.images.messageIDs[domain.StageNew], 3)
	f.images.mu.Unlock()

	// The processing ack is deleted once the job finishes.
	f.channel.mu.Lock()
	assert.Len(t, f.channel.deleted, 1)
	f.channel.mu.Unlock()
}

func TestSubmissionLimitBlocksUnpaidRequester(t *testing.T) {
	f := newBotFixture(t)
	f.images.unpaidCount = 20

	f.bot.handleMessage(context.Background(), photoMessage())
	f.queue.Wait()

	f.images.mu.Lock()
	assert.Empty(t, f.images.created)
	f.images.mu.Unlock()
	messages := f.channel.sentMessages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1], "лимита")
}

func TestSubmissionLimitIgnoredForPayingRequester(t *testing.T) {
	f := newBotFixture(t)
	f.images.unpaidCount = 20
	f.users.hasPaid = true

	f.bot.handleMessage(context.Background(), photoMessage())
	f.queue.Wait()

	f.images.mu.Lock()
	assert.Len(t, f.images.created, 1)
	f.images.mu.Unlock()
}

func TestUndecodableUploadIsRejected(t *testing.T) {
	f := newBotFixture(t)
	f.channel.mu.Lock()
	f.channel.files["photo-1"] = []byte("not an image")
	f.channel.mu.Unlock()

	f.bot.handleMessage(context.Background(), photoMessage())
	f.queue.Wait()

	f.images.mu.Lock()
	assert.Empty(t, f.images.created)
	f.images.mu.Unlock()
	messages := f.channel.sentMessages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1], "формат")
}

func TestNonImageDocumentRejectedBeforeDownload(t *testing.T) {
	f := newBotFixture(t)
	msg := &notify.Message{
		From:     &notify.UserInfo{ID: 42},
		Chat:     notify.Chat{ID: 42},
		Document: &notify.DocumentInfo{FileID: "doc-1", FileName: "report.pdf", MimeType: "application/pdf"},
	}

	f.bot.handleMessage(context.Background(), msg)
	f.queue.Wait()

	messages := f.channel.sentMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "не является изображением")
}

func payCallback(t *testing.T, imageID int64, price int) *notify.CallbackQuery {
	t.Helper()
	data, err := domain.Action{Kind: domain.ActionPay, ImageID: imageID, Price: price}.Encode()
	require.NoError(t, err)
	return &notify.CallbackQuery{
		ID:      "cb-1",
		From:    &notify.UserInfo{ID: 42, Username: "alice"},
		Message: &notify.Message{ID: 70, Chat: notify.Chat{ID: 42}},
		Data:    data,
	}
}

func TestPayCallbackCreatesInvoice(t *testing.T) {
	f := newBotFixture(t)
	require.NoError(t, f.images.Create(context.Background(), &domain.Image{Key: "img-key", UserID: 1}))

	f.bot.handleCallback(context.Background(), payCallback(t, 1, 490))

	f.invoices.mu.Lock()
	require.Len(t, f.invoices.created, 1)
	assert.Equal(t, 490, f.invoices.created[0].Amount)
	assert.Equal(t, "pay-1", f.invoices.created[0].InvoiceID)
	f.invoices.mu.Unlock()

	// Offer keyboard frozen, payment link sent.
	f.channel.mu.Lock()
	assert.NotEmpty(t, f.channel.markups)
	f.channel.mu.Unlock()
	messages := f.channel.sentMessages()
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0], "ссылке")

	// Let the short-deadline poll goroutine finish before the fixture goes away.
	time.Sleep(20 * time.Millisecond)
}

func TestPayCallbackOnPaidImage(t *testing.T) {
	f := newBotFixture(t)
	require.NoError(t, f.images.Create(context.Background(), &domain.Image{Key: "img-key", Paid: true}))

	f.bot.handleCallback(context.Background(), payCallback(t, 1, 490))

	f.invoices.mu.Lock()
	assert.Empty(t, f.invoices.created)
	f.invoices.mu.Unlock()
	f.channel.mu.Lock()
	require.NotEmpty(t, f.channel.answers)
	assert.Contains(t, f.channel.answers[0], "уже отправлены")
	f.channel.mu.Unlock()
}

func TestDismissPointsToSupport(t *testing.T) {
	f := newBotFixture(t)
	data, err := domain.Action{Kind: domain.ActionDismiss}.Encode()
	require.NoError(t, err)

	f.bot.handleCallback(context.Background(), &notify.CallbackQuery{
		ID:      "cb-2",
		From:    &notify.UserInfo{ID: 42},
		Message: &notify.Message{ID: 71, Chat: notify.Chat{ID: 42}},
		Data:    data,
	})

	messages := f.channel.sentMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "@support")
}

func TestGarbageCallbackAnswered(t *testing.T) {
	f := newBotFixture(t)

	f.bot.handleCallback(context.Background(), &notify.CallbackQuery{ID: "cb-3", Data: "zzz"})

	f.channel.mu.Lock()
	require.NotEmpty(t, f.channel.answers)
	assert.True(t, f.channel.alertUsed)
	f.channel.mu.Unlock()
	f.invoices.mu.Lock()
	assert.Empty(t, f.invoices.created)
	f.invoices.mu.Unlock()
}
