package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// DigestSchedule drives the periodic flush of batched notifications.
// It keeps the cron expression together with the precomputed next flush
// time so the watchdog can poll for due digests without per-digest timers.
type DigestSchedule struct {
	// ID uniquely identifies this schedule entry
	ID string `json:"id" validate:"required"`

	// Channel identifies the notification channel this digest batches for
	Channel string `json:"channel" validate:"required"`

	// CronExpression defines when the digest flushes
	// Uses standard 5-field cron format (minute hour day month weekday)
	CronExpression string `json:"cron_expression" validate:"required"`

	// NextDueAt is the precomputed next flush time
	NextDueAt time.Time `json:"next_due_at" validate:"required"`

	// CreatedAt timestamp when this schedule was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt timestamp when this schedule was last updated
	UpdatedAt time.Time `json:"updated_at"`

	// Active indicates if this schedule is currently active
	Active bool `json:"active"`
}

// NewDigestSchedule creates a schedule with the first flush time calculated.
func NewDigestSchedule(id, channel, cronExpression string) (*DigestSchedule, error) {
	now := time.Now().UTC()
	schedule := &DigestSchedule{
		ID:             id,
		Channel:        channel,
		CronExpression: cronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt recalculates the next flush time from the current time.
func (s *DigestSchedule) UpdateNextDueAt() error {
	return s.calculateNextDueAt(time.Now().UTC())
}

func (s *DigestSchedule) calculateNextDueAt(referenceTime time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(referenceTime)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue checks if this schedule is due for a flush at the given time.
func (s *DigestSchedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *DigestSchedule) Validate() error {
	if s.ID == "" {
		return ErrInvalidDigestSchedule
	}

	if s.Channel == "" {
		return ErrInvalidDigestSchedule
	}

	if s.CronExpression == "" {
		return ErrInvalidDigestSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(s.CronExpression)

	return err
}

// ErrInvalidDigestSchedule is returned when schedule validation fails.
var ErrInvalidDigestSchedule = errors.New("invalid digest schedule configuration")
