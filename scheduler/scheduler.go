// Package scheduler fans inbound chat events out to per-chat workers.
// Events for one chat are handled strictly in arrival order, different chats run in parallel.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"avito-helper/conversation"
)

const (
	// DefaultQueueSize bounds pending events per chat
	DefaultQueueSize = 16
	// DefaultIdleTimeout is how long a worker waits for new events before exiting
	DefaultIdleTimeout = 5 * time.Minute
)

// Handler processes one event; conversation.Machine satisfies it
type Handler interface {
	Handle(ctx context.Context, ev conversation.Event)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, ev conversation.Event)

func (f HandlerFunc) Handle(ctx context.Context, ev conversation.Event) {
	f(ctx, ev)
}

// Scheduler owns one worker goroutine and queue per active chat
type Scheduler struct {
	handler   Handler
	queueSize int
	idle      time.Duration

	mu      sync.Mutex
	workers map[int64]chan conversation.Event
	stopped bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler; handlers run with a context cancelled by Stop
func NewScheduler(handler Handler, queueSize int, idle time.Duration) *Scheduler {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		handler:   handler,
		queueSize: queueSize,
		idle:      idle,
		workers:   make(map[int64]chan conversation.Event),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Dispatch queues ev for its chat. It returns false if the scheduler is stopped
// or the chat's queue is full, in which case the event is dropped.
func (s *Scheduler) Dispatch(ev conversation.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	queue, ok := s.workers[ev.ChatID]
	if !ok {
		queue = make(chan conversation.Event, s.queueSize)
		s.workers[ev.ChatID] = queue
		s.wg.Add(1)
		go s.run(ev.ChatID, queue)
	}

	select {
	case queue <- ev:
		return true
	default:
		slog.Warn("chat queue full, dropping event", "chat_id", ev.ChatID)
		return false
	}
}

// Stop cancels in-flight handlers and waits for every worker to exit
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// Active reports how many chats currently have a worker
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// run is the worker loop for one chat
func (s *Scheduler) run(chatID int64, queue chan conversation.Event) {
	defer s.wg.Done()

	timer := time.NewTimer(s.idle)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.remove(chatID, queue)
			return
		case ev := <-queue:
			s.handler.Handle(s.ctx, ev)
			timer.Reset(s.idle)
		case <-timer.C:
			// Exit only if nothing arrived between the timer firing and taking the lock
			if s.retire(chatID, queue) {
				return
			}
			timer.Reset(s.idle)
		}
	}
}

func (s *Scheduler) retire(chatID int64, queue chan conversation.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(queue) > 0 {
		return false
	}
	delete(s.workers, chatID)
	return true
}

func (s *Scheduler) remove(chatID int64, queue chan conversation.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers[chatID] == queue {
		delete(s.workers, chatID)
	}
}
