package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"avito-helper/models"

	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	chatID int64
	text   string
}

// fakeSender fails the first failures[text] sends of a given text
type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	attempts map[string]int
	failures map[string]int
	errFor   func(text string) error
}

func newFakeSender() *fakeSender {
	return &fakeSender{attempts: map[string]int{}, failures: map[string]int{}}
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts[text]++
	if f.errFor != nil {
		if err := f.errFor(text); err != nil {
			return err
		}
	}
	if f.attempts[text] <= f.failures[text] {
		return errors.New("connection reset")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.text)
	}
	return out
}

type retryAfterErr struct{ d time.Duration }

func (e retryAfterErr) Error() string             { return "too many requests" }
func (e retryAfterErr) RetryAfter() time.Duration { return e.d }

func newTestPipeline(sender Sender, opts Options) (*Pipeline, *[]time.Duration) {
	p := NewPipeline(sender, opts)
	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return p, &sleeps
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price    int
		currency string
		want     string
	}{
		{0, "₽", "0 ₽"},
		{999, "₽", "999 ₽"},
		{40000, "₽", "40 000 ₽"},
		{1250000, "₽", "1 250 000 ₽"},
		{1000, "", "1 000"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatPrice(tt.price, tt.currency))
	}
}

func TestFormatListing(t *testing.T) {
	l := models.Listing{
		Rank:        1,
		URL:         "https://www.avito.ru/item/1",
		Description: "Bright flat",
		Price:       intPtr(40000),
	}
	require.Equal(t, "1) Link: https://www.avito.ru/item/1\nDescription: Bright flat\nPrice: 40 000 ₽", FormatListing(l, DefaultCurrency))

	l.Rank = 2
	l.Price = nil
	require.Equal(t, "2) Link: https://www.avito.ru/item/1\nDescription: Bright flat\nPrice: price not found", FormatListing(l, DefaultCurrency))
}

func TestDeliver_OrderAndThumbnails(t *testing.T) {
	sender := newFakeSender()
	p, _ := newTestPipeline(sender, Options{Currency: DefaultCurrency})

	listings := []models.Listing{
		{Rank: 1, URL: "u1", Description: "d1", Price: intPtr(100), Thumbnail: strPtr("https://img/1.jpg")},
		{Rank: 2, URL: "u2", Description: "d2"},
		{Rank: 3, URL: "u3", Description: "d3", Price: intPtr(2500), Thumbnail: strPtr("https://img/3.jpg")},
	}

	report, err := p.Deliver(context.Background(), 99, listings)
	require.NoError(t, err)
	require.Equal(t, Report{Sent: 5}, report)
	require.Equal(t, []string{
		"1) Link: u1\nDescription: d1\nPrice: 100 ₽",
		"https://img/1.jpg",
		"2) Link: u2\nDescription: d2\nPrice: price not found",
		"3) Link: u3\nDescription: d3\nPrice: 2 500 ₽",
		"https://img/3.jpg",
	}, sender.texts())

	for _, m := range sender.sent {
		require.Equal(t, int64(99), m.chatID)
	}
}

func TestSendWithRetry_FixedDelayUntilSuccess(t *testing.T) {
	sender := newFakeSender()
	sender.failures["hello"] = 4
	p, sleeps := newTestPipeline(sender, Options{RetryDelay: time.Second})

	require.NoError(t, p.SendWithRetry(context.Background(), 1, "hello"))
	require.Equal(t, 5, sender.attempts["hello"])
	require.Equal(t, []time.Duration{time.Second, time.Second, time.Second, time.Second}, *sleeps)
	require.Equal(t, []string{"hello"}, sender.texts())
}

func TestSendWithRetry_UnboundedStopsOnlyOnCancel(t *testing.T) {
	sender := newFakeSender()
	sender.failures["stuck"] = 1 << 30

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipeline(sender, Options{RetryDelay: time.Second})
	calls := 0
	p.sleep = func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 50 {
			cancel()
		}
		return ctx.Err()
	}

	err := p.SendWithRetry(ctx, 1, "stuck")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 50, sender.attempts["stuck"])
}

func TestSendWithRetry_BoundedBackoff(t *testing.T) {
	sender := newFakeSender()
	sender.failures["msg"] = 10
	p, sleeps := newTestPipeline(sender, Options{
		RetryDelay:  time.Second,
		MaxAttempts: 4,
		MaxDelay:    3 * time.Second,
	})

	err := p.SendWithRetry(context.Background(), 1, "msg")
	require.ErrorIs(t, err, ErrGaveUp)
	require.Equal(t, 4, sender.attempts["msg"])
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *sleeps)
}

func TestSendWithRetry_PermanentNotRetried(t *testing.T) {
	sender := newFakeSender()
	sender.errFor = func(text string) error { return Permanent(errors.New("message is too long")) }
	p, sleeps := newTestPipeline(sender, Options{})

	err := p.SendWithRetry(context.Background(), 1, "x")
	require.ErrorIs(t, err, ErrPermanent)
	require.Equal(t, 1, sender.attempts["x"])
	require.Empty(t, *sleeps)
}

func TestSendWithRetry_HonoursRetryAfter(t *testing.T) {
	sender := newFakeSender()
	first := true
	sender.errFor = func(text string) error {
		if first {
			first = false
			return retryAfterErr{d: 5 * time.Second}
		}
		return nil
	}
	p, sleeps := newTestPipeline(sender, Options{RetryDelay: time.Second})

	require.NoError(t, p.SendWithRetry(context.Background(), 1, "x"))
	require.Equal(t, []time.Duration{5 * time.Second}, *sleeps)
}

func TestDeliver_SkipsPermanentAndContinues(t *testing.T) {
	sender := newFakeSender()
	sender.errFor = func(text string) error {
		if text == "https://img/bad.jpg" {
			return Permanent(errors.New("bad request"))
		}
		return nil
	}
	p, _ := newTestPipeline(sender, Options{})

	listings := []models.Listing{
		{Rank: 1, URL: "u1", Description: "d1", Thumbnail: strPtr("https://img/bad.jpg")},
		{Rank: 2, URL: "u2", Description: "d2"},
	}
	report, err := p.Deliver(context.Background(), 1, listings)
	require.NoError(t, err)
	require.Equal(t, Report{Sent: 2, Skipped: 1}, report)
	require.Len(t, sender.texts(), 2)
}

func TestDeliver_FallbackAfterBoundedRetries(t *testing.T) {
	sender := newFakeSender()
	first := "1) Link: u1\nDescription: d1\nPrice: price not found"
	sender.failures[first] = 100
	p, _ := newTestPipeline(sender, Options{MaxAttempts: 2})

	listings := []models.Listing{
		{Rank: 1, URL: "u1", Description: "d1"},
		{Rank: 2, URL: "u2", Description: "d2"},
	}
	report, err := p.Deliver(context.Background(), 1, listings)
	require.NoError(t, err)
	require.Equal(t, Report{Sent: 1, Failed: 1}, report)
	require.Equal(t, []string{FailedMessage, "2) Link: u2\nDescription: d2\nPrice: price not found"}, sender.texts())
}

func TestDeliver_CancelledContext(t *testing.T) {
	sender := newFakeSender()
	p, _ := newTestPipeline(sender, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Deliver(ctx, 1, []models.Listing{{Rank: 1}})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, sender.texts())
}

func TestSenderFunc(t *testing.T) {
	var got string
	s := SenderFunc(func(_ context.Context, _ int64, text string) error {
		got = text
		return nil
	})
	require.NoError(t, s.Send(context.Background(), 1, "hi"))
	require.Equal(t, "hi", got)
}
