package sweep

import (
	"bytes"
	"context"
	"image"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobot/internal/domain"
	"photobot/internal/notify"
	"photobot/internal/pipeline"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 60, 40)), imaging.PNG))
	return buf.Bytes()
}

type fakeTransformer struct {
	result []byte
	tiers  []domain.Tier
}

func (f *fakeTransformer) RemoveBackground(ctx context.Context, img []byte, tier domain.Tier) ([]byte, error) {
	f.tiers = append(f.tiers, tier)
	return f.result, nil
}

type fakeImages struct {
	byKey        map[string]*domain.Image
	unpaid       []domain.UnpaidImage
	messageIDs   map[string]map[domain.Stage][]int64
	improvedRefs map[string]domain.ImprovedRefs
}

func newFakeImages() *fakeImages {
	return &fakeImages{
		byKey:        map[string]*domain.Image{},
		messageIDs:   map[string]map[domain.Stage][]int64{},
		improvedRefs: map[string]domain.ImprovedRefs{},
	}
}

func (f *fakeImages) add(img *domain.Image, requesterID int64) {
	f.byKey[img.Key] = img
	f.unpaid = append(f.unpaid, domain.UnpaidImage{Image: *img, RequesterID: requesterID})
}

func (f *fakeImages) Create(ctx context.Context, img *domain.Image) error { return nil }
func (f *fakeImages) GetByKey(ctx context.Context, key string) (*domain.Image, error) {
	img, ok := f.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *img
	return &copied, nil
}
func (f *fakeImages) GetByID(ctx context.Context, id int64) (*domain.Image, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeImages) MarkPaid(ctx context.Context, key string) error {
	f.byKey[key].Paid = true
	return nil
}
func (f *fakeImages) SaveImprovedRefs(ctx context.Context, key string, refs domain.ImprovedRefs) error {
	f.improvedRefs[key] = refs
	img := f.byKey[key]
	img.ImpTransparent = refs.Transparent
	img.ImpMono = refs.Mono
	img.ImpTransparentWM = refs.TransparentWM
	img.ImpMonoWM = refs.MonoWM
	return nil
}
func (f *fakeImages) SaveStageMessageIDs(ctx context.Context, key string, stage domain.Stage, ids []int64) error {
	if f.messageIDs[key] == nil {
		f.messageIDs[key] = map[domain.Stage][]int64{}
	}
	f.messageIDs[key][stage] = ids
	return nil
}
func (f *fakeImages) StageMessageIDs(ctx context.Context, key string, stage domain.Stage) ([]int64, error) {
	return f.messageIDs[key][stage], nil
}
func (f *fakeImages) MarkStageSent(ctx context.Context, key string, stage domain.Stage) error {
	img := f.byKey[key]
	if img.Paid {
		return domain.ErrImagePaid
	}
	if !img.Stage.CanAdvanceTo(stage) {
		return domain.ErrStageOrder
	}
	img.Stage = stage
	return nil
}
func (f *fakeImages) CountUnpaidSince(ctx context.Context, telegramID int64, window time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeImages) ListUnpaid(ctx context.Context) ([]domain.UnpaidImage, error) {
	return f.unpaid, nil
}
func (f *fakeImages) CountUnpaid(ctx context.Context) (int64, error) { return 0, nil }

type fakeStore struct {
	blobs map[domain.ArtifactRef][]byte
	puts  []string
	sends []domain.ArtifactRef
}

func (s *fakeStore) Put(ctx context.Context, data []byte, label string) (domain.ArtifactRef, error) {
	s.puts = append(s.puts, label)
	return domain.ArtifactRef("ref-" + label), nil
}
func (s *fakeStore) Send(ctx context.Context, ref domain.ArtifactRef, chatID int64, caption string) (int64, error) {
	s.sends = append(s.sends, ref)
	return int64(1000 + len(s.sends)), nil
}
func (s *fakeStore) Get(ctx context.Context, ref domain.ArtifactRef) ([]byte, error) {
	if data, ok := s.blobs[ref]; ok {
		return data, nil
	}
	return nil, domain.ErrNotFound
}

type fakeChannel struct {
	messages []string
	deleted  []int64
}

func (c *fakeChannel) SendMessage(ctx context.Context, chatID int64, text string, markup *notify.InlineKeyboardMarkup) (int64, error) {
	c.messages = append(c.messages, text)
	return int64(2000 + len(c.messages)), nil
}
func (c *fakeChannel) SendDocument(ctx context.Context, chatID int64, doc notify.Document) (notify.SentDocument, error) {
	return notify.SentDocument{}, nil
}
func (c *fakeChannel) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return nil
}
func (c *fakeChannel) EditReplyMarkup(ctx context.Context, chatID, messageID int64, markup *notify.InlineKeyboardMarkup) error {
	return nil
}
func (c *fakeChannel) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	c.deleted = append(c.deleted, messageID)
	return nil
}
func (c *fakeChannel) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	return nil
}
func (c *fakeChannel) DownloadFile(ctx context.Context, fileRef string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

type sweepFixture struct {
	sweeper *Sweeper
	images  *fakeImages
	store   *fakeStore
	channel *fakeChannel
	clock   time.Time
	sleeps  []time.Duration
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	png := testPNG(t)
	f := &sweepFixture{
		images:  newFakeImages(),
		store:   &fakeStore{blobs: map[domain.ArtifactRef][]byte{"orig": png}},
		channel: &fakeChannel{},
		clock:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	f.sweeper = New(Options{
		Images:   f.images,
		Pipeline: pipeline.New(&fakeTransformer{result: png}, zerolog.Nop()),
		Store:    f.store,
		Channel:  f.channel,
		Logger:   zerolog.Nop(),
		Pricing:  domain.DefaultPricing(),
		Gates: Gates{
			ImprovedAfter:    2 * time.Minute,
			Discount290After: 4 * time.Minute,
			Discount190After: 6 * time.Minute,
			Discount99After:  8 * time.Minute,
		},
		DeletePacing: 100 * time.Millisecond,
		ImagePacing:  500 * time.Millisecond,
	})
	f.sweeper.now = func() time.Time { return f.clock }
	f.sweeper.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func (f *sweepFixture) addImage(age time.Duration, stage domain.Stage) *domain.Image {
	img := &domain.Image{
		ID:               1,
		Key:              "img-key",
		Original:         "orig",
		StdTransparent:   "std-t",
		StdMono:          "std-m",
		StdTransparentWM: "std-t-wm",
		StdMonoWM:        "std-m-wm",
		Stage:            stage,
		CreatedAt:        f.clock.Add(-age),
	}
	f.images.add(img, 42)
	return img
}

func TestPassOffersImprovedPastGate(t *testing.T) {
	f := newSweepFixture(t)
	f.addImage(3*time.Minute, domain.StageNew)

	require.NoError(t, f.sweeper.RunPass(context.Background()))

	img := f.images.byKey["img-key"]
	assert.Equal(t, domain.StageImprovedOffered, img.Stage)
	assert.True(t, img.HasImproved())
	assert.Len(t, f.store.puts, 4)
	// Two watermarked previews plus one offer message, all recorded.
	assert.Len(t, f.store.sends, 2)
	require.Len(t, f.channel.messages, 1)
	assert.Contains(t, f.channel.messages[0], "УЛУЧШЕННАЯ")
	assert.Len(t, f.images.messageIDs["img-key"][domain.StageImprovedOffered], 3)
}

func TestPassAdvancesOneStagePerPass(t *testing.T) {
	// Well past every gate: still only one transition per pass.
	f := newSweepFixture(t)
	f.addImage(20*time.Minute, domain.StageNew)

	require.NoError(t, f.sweeper.RunPass(context.Background()))
	assert.Equal(t, domain.StageImprovedOffered, f.images.byKey["img-key"].Stage)

	require.NoError(t, f.sweeper.RunPass(context.Background()))
	assert.Equal(t, domain.StageDiscount290Offered, f.images.byKey["img-key"].Stage)
}

func TestPassSkipsBeforeGate(t *testing.T) {
	f := newSweepFixture(t)
	f.addImage(3*time.Minute+30*time.Second, domain.StageImprovedOffered)

	require.NoError(t, f.sweeper.RunPass(context.Background()))

	assert.Equal(t, domain.StageImprovedOffered, f.images.byKey["img-key"].Stage)
	assert.Empty(t, f.store.sends)
	assert.Empty(t, f.channel.messages)
}

func TestPassSkipsImagePaidAfterListing(t *testing.T) {
	f := newSweepFixture(t)
	img := f.addImage(5*time.Minute, domain.StageNew)
	// Payment lands between listing and the per-image refetch.
	img.Paid = true
	img.Stage = domain.StagePaid

	require.NoError(t, f.sweeper.RunPass(context.Background()))

	assert.Empty(t, f.store.sends)
	assert.Empty(t, f.channel.messages)
}

func TestDiscountEscalationRetiresOldMessages(t *testing.T) {
	f := newSweepFixture(t)
	img := f.addImage(5*time.Minute, domain.StageImprovedOffered)
	img.ImpTransparent = "imp-t"
	img.ImpMono = "imp-m"
	img.ImpTransparentWM = "imp-t-wm"
	img.ImpMonoWM = "imp-m-wm"
	f.images.messageIDs["img-key"] = map[domain.Stage][]int64{
		domain.StageNew:             {101, 102, 103},
		domain.StageImprovedOffered: {301, 302, 303},
	}

	require.NoError(t, f.sweeper.RunPass(context.Background()))

	assert.Equal(t, domain.StageDiscount290Offered, f.images.byKey["img-key"].Stage)
	// The discounted price covers all four versions, so the previews combine
	// the standard pair with the improved pair.
	assert.Equal(t, []domain.ArtifactRef{"std-t-wm", "std-m-wm", "imp-t-wm", "imp-m-wm"}, f.store.sends)
	require.Len(t, f.channel.messages, 1)
	assert.Contains(t, f.channel.messages[0], "290")
	// Both superseded offers go away: the improved one and the original
	// base-price one, which would otherwise keep a live pay button forever.
	assert.Equal(t, []int64{301, 302, 303, 101, 102, 103}, f.channel.deleted)
	assert.Len(t, f.images.messageIDs["img-key"][domain.StageDiscount290Offered], 5)
}

func TestLaterDiscountsReplaceOnlyPredecessor(t *testing.T) {
	f := newSweepFixture(t)
	img := f.addImage(7*time.Minute, domain.StageDiscount290Offered)
	img.ImpTransparentWM = "imp-t-wm"
	img.ImpMonoWM = "imp-m-wm"
	img.ImpTransparent = "imp-t"
	img.ImpMono = "imp-m"
	f.images.messageIDs["img-key"] = map[domain.Stage][]int64{
		domain.StageNew:                {101},
		domain.StageDiscount290Offered: {401, 402},
	}

	require.NoError(t, f.sweeper.RunPass(context.Background()))

	assert.Equal(t, domain.StageDiscount190Offered, f.images.byKey["img-key"].Stage)
	assert.Equal(t, []int64{401, 402}, f.channel.deleted)
}

func TestDiscountWithoutImprovedSendsStandardPairOnly(t *testing.T) {
	f := newSweepFixture(t)
	f.addImage(5*time.Minute, domain.StageImprovedOffered)

	require.NoError(t, f.sweeper.RunPass(context.Background()))

	assert.Equal(t, domain.StageDiscount290Offered, f.images.byKey["img-key"].Stage)
	assert.Equal(t, []domain.ArtifactRef{"std-t-wm", "std-m-wm"}, f.store.sends)
}

func TestFinalStageIsLeftAlone(t *testing.T) {
	f := newSweepFixture(t)
	f.addImage(time.Hour, domain.StageDiscount99Offered)

	require.NoError(t, f.sweeper.RunPass(context.Background()))

	assert.Equal(t, domain.StageDiscount99Offered, f.images.byKey["img-key"].Stage)
	assert.Empty(t, f.channel.messages)
}
