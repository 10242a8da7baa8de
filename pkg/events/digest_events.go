package events

import (
	"errors"
	"time"

	"github.com/medwise/remedion/pkg/models"
)

// DigestNotice is one deferred notification inside a digest. Low-severity
// notices buffer into these instead of paging an administrator per error.
type DigestNotice struct {
	Code       models.ErrorCode `json:"code"`
	WireCode   string           `json:"wire_code"`
	Severity   models.Severity  `json:"severity"`
	Message    string           `json:"message"`
	InstanceID string           `json:"instance_id,omitempty"`
	RaisedAt   time.Time        `json:"raised_at"`
}

// NotificationDigest carries a batch of deferred notices flushed on the
// digest schedule.
type NotificationDigest struct {
	BaseEvent

	Channel     string         `json:"channel"`
	Notices     []DigestNotice `json:"notices"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
}

func (n NotificationDigest) GetType() EventType {
	return NotificationDigestEvent
}

func NewNotificationDigest(channel string, notices []DigestNotice, windowStart, windowEnd time.Time) NotificationDigest {
	if notices == nil {
		notices = make([]DigestNotice, 0)
	}

	return NotificationDigest{
		BaseEvent:   NewBaseEvent(NotificationDigestEvent, ""),
		Channel:     channel,
		Notices:     notices,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
}

// Validate performs basic validation on the digest structure.
func (n *NotificationDigest) Validate() error {
	if n.Channel == "" {
		return errors.New("channel is required")
	}

	if n.WindowEnd.Before(n.WindowStart) {
		return errors.New("window_end must not precede window_start")
	}

	return nil
}
