package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"avito-helper/models"

	"golang.org/x/time/rate"
)

// FailedMessage is the fallback sent when bounded retries are exhausted
const FailedMessage = "Failed to deliver a result, skipping it."

var (
	// ErrPermanent marks a send failure that retrying cannot fix, such as rejected content
	ErrPermanent = errors.New("permanent delivery failure")
	// ErrGaveUp is returned once a bounded retry budget is spent
	ErrGaveUp = errors.New("delivery retries exhausted")
)

// Sender delivers one text message to a chat
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(ctx context.Context, chatID int64, text string) error

func (f SenderFunc) Send(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// Permanent wraps err so the pipeline does not retry it
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// retryAfterError is implemented by transport errors carrying a server-requested delay
type retryAfterError interface {
	RetryAfter() time.Duration
}

// Options configures retry and pacing
type Options struct {
	RetryDelay  time.Duration // Wait between attempts
	MaxAttempts int           // 0 retries forever with a fixed delay
	MaxDelay    time.Duration // Cap for the doubled delay when MaxAttempts > 0
	RatePerSec  float64       // Outbound messages per second, 0 for unlimited
	Currency    string
}

// Report summarises one batch
type Report struct {
	Sent    int // Messages delivered
	Skipped int // Messages rejected permanently
	Failed  int // Messages abandoned after the retry budget
}

// Pipeline delivers ranked listings to a chat, one message at a time
type Pipeline struct {
	sender  Sender
	opts    Options
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a delivery pipeline over sender
func NewPipeline(sender Sender, opts Options) *Pipeline {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MaxDelay < opts.RetryDelay {
		opts.MaxDelay = opts.RetryDelay
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}

	return &Pipeline{
		sender:  sender,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepContext,
	}
}

// Deliver sends every listing in rank order: the text message, then the thumbnail URL if any.
// Only context cancellation aborts the batch.
func (p *Pipeline) Deliver(ctx context.Context, chatID int64, listings []models.Listing) (Report, error) {
	var report Report

	for _, listing := range listings {
		messages := []string{FormatListing(listing, p.opts.Currency)}
		if listing.HasThumbnail() {
			messages = append(messages, *listing.Thumbnail)
		}

		for _, text := range messages {
			slog.Debug("sending listing", "chat_id", chatID, "rank", listing.Rank)
			err := p.SendWithRetry(ctx, chatID, text)

			switch {
			case err == nil:
				report.Sent++
			case errors.Is(err, ErrPermanent):
				slog.Error("listing rejected by transport", "chat_id", chatID, "rank", listing.Rank, "err", err)
				report.Skipped++
			case errors.Is(err, ErrGaveUp):
				slog.Error("giving up on listing", "chat_id", chatID, "rank", listing.Rank, "err", err)
				report.Failed++
				if sendErr := p.sender.Send(ctx, chatID, FailedMessage); sendErr != nil {
					slog.Warn("failed to send delivery failure notice", "chat_id", chatID, "err", sendErr)
				}
			default:
				return report, err
			}
		}
	}

	return report, nil
}

// SendWithRetry sends text, retrying transient failures after RetryDelay.
// With MaxAttempts == 0 it never gives up; otherwise the delay doubles up to MaxDelay.
func (p *Pipeline) SendWithRetry(ctx context.Context, chatID int64, text string) error {
	delay := p.opts.RetryDelay

	for attempt := 1; ; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		err := p.sender.Send(ctx, chatID, text)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p.opts.MaxAttempts > 0 && attempt >= p.opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, attempt, err)
		}

		wait := delay
		var ra retryAfterError
		if errors.As(err, &ra) && ra.RetryAfter() > wait {
			wait = ra.RetryAfter()
		}

		slog.Warn("failed to send message, retrying", "chat_id", chatID, "attempt", attempt, "wait", wait, "err", err)
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}

		if p.opts.MaxAttempts > 0 {
			delay = min(delay*2, p.opts.MaxDelay)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
