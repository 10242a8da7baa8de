package notification

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/medwise/remedion/pkg/events"
	"github.com/medwise/remedion/pkg/models"
)

// digestBuffer accumulates deferred notices per channel until the digest
// schedule flushes them.
type digestBuffer struct {
	mu      sync.Mutex
	notices map[string][]events.DigestNotice
	opened  map[string]time.Time
}

func newDigestBuffer() *digestBuffer {
	return &digestBuffer{
		notices: make(map[string][]events.DigestNotice),
		opened:  make(map[string]time.Time),
	}
}

func (b *digestBuffer) add(channel string, notice events.DigestNotice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.notices[channel]) == 0 {
		b.opened[channel] = time.Now().UTC()
	}

	b.notices[channel] = append(b.notices[channel], notice)
}

// drain empties a channel's window. ok is false when the window held nothing.
func (b *digestBuffer) drain(channel string) (notices []events.DigestNotice, windowStart, windowEnd time.Time, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	notices = b.notices[channel]
	if len(notices) == 0 {
		return nil, time.Time{}, time.Time{}, false
	}

	windowStart = b.opened[channel]
	windowEnd = time.Now().UTC()

	delete(b.notices, channel)
	delete(b.opened, channel)

	return notices, windowStart, windowEnd, true
}

func (b *digestBuffer) pending(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.notices[channel])
}

func (b *digestBuffer) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	channels := make([]string, 0, len(b.notices))
	for channel := range b.notices {
		channels = append(channels, channel)
	}

	sort.Strings(channels)

	return channels
}

// DigestScheduler flushes notification digests when their schedules come due.
// A single poller checks every schedule's precomputed NextDueAt, so channels
// with different cron expressions share one goroutine.
type DigestScheduler struct {
	notifier  *BusNotifier
	schedules []*models.DigestSchedule
	logger    *slog.Logger

	pollInterval time.Duration
	ticker       *time.Ticker
	done         chan bool
	started      bool
	mu           sync.Mutex
}

// NewDigestScheduler validates the schedules and wires the scheduler.
func NewDigestScheduler(notifier *BusNotifier, schedules []*models.DigestSchedule, logger *slog.Logger) (*DigestScheduler, error) {
	for _, schedule := range schedules {
		if err := schedule.Validate(); err != nil {
			return nil, err
		}
	}

	return &DigestScheduler{
		notifier:     notifier,
		schedules:    schedules,
		logger:       logger.With("module", "notification"),
		pollInterval: time.Minute,
	}, nil
}

// Start begins polling for due digests. Calling Start on a running scheduler
// is a no-op.
func (s *DigestScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.ticker = time.NewTicker(s.pollInterval)
	s.done = make(chan bool)
	s.started = true

	go s.poll(ctx)

	s.logger.InfoContext(ctx, "digest scheduler started", "schedules", len(s.schedules))
}

// Stop halts the poller. Buffered notices stay in the notifier until the next
// Start or an explicit flush.
func (s *DigestScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.ticker.Stop()

	select {
	case s.done <- true:
	default:
	}

	s.started = false
}

func (s *DigestScheduler) poll(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.FlushDue(ctx, time.Now().UTC())
		}
	}
}

// FlushDue flushes every schedule that is due at the given time and advances
// its next due time. Exposed so the watchdog can drive flushes from its own
// cron loop.
func (s *DigestScheduler) FlushDue(ctx context.Context, now time.Time) {
	for _, schedule := range s.schedules {
		if !schedule.IsDue(now) {
			continue
		}

		s.notifier.FlushDigest(ctx, schedule.Channel)

		if err := schedule.UpdateNextDueAt(); err != nil {
			s.logger.ErrorContext(ctx, "failed to advance digest schedule",
				"schedule_id", schedule.ID,
				"channel", schedule.Channel,
				"error", err)
		}
	}
}
