package model

import "time"

const (
	MeetingScheduled = "scheduled"
	MeetingCancelled = "cancelled"
)

const (
	LocationGoogleMeet = "google_meet"
	LocationPhone      = "phone"
	LocationInPerson   = "in_person"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// User is a host account. Rows are never hard-deleted.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Timezone     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EventType is a bookable meeting template owned by a host.
type EventType struct {
	ID           string
	UserID       string
	Name         string
	Slug         string
	Description  string
	DurationMins int
	LocationKind string
	PriceCents   int64
	Currency     string
	IsPrivate    bool
	CreatedAt    time.Time
}

// AvailabilityRule is one window of a host's weekly template, or a
// date-specific override. Weekly rules carry Weekday; overrides carry Date.
// An override with StartMinute == EndMinute == 0 blocks the whole day.
type AvailabilityRule struct {
	ID          string
	UserID      string
	Weekday     int // 0=Sunday .. 6=Saturday; -1 for date overrides
	Date        *time.Time
	StartMinute int // minutes since host-local midnight
	EndMinute   int
	CreatedAt   time.Time
}

// IsOverride reports whether the rule applies to a single date instead of a weekday.
func (r AvailabilityRule) IsOverride() bool { return r.Date != nil }

// BlocksDay reports whether a date override removes all availability for its date.
func (r AvailabilityRule) BlocksDay() bool {
	return r.IsOverride() && r.StartMinute == 0 && r.EndMinute == 0
}

type Meeting struct {
	ID              string
	EventTypeID     string
	HostID          string
	InviteeName     string
	InviteeEmail    string
	StartTime       time.Time
	EndTime         time.Time
	Status          string
	CancelTokenHash string
	CancelledAt     *time.Time
	CancelReason    string
	MeetingLink     string
	PaymentIntentID string
	PaymentStatus   string
	CreatedAt       time.Time
}

// Integration is a connected external provider for a host (Google Calendar).
type Integration struct {
	ID           string
	UserID       string
	Provider     string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CreatedAt    time.Time
}
