package ports

import (
	"time"

	"merchantdispatch/internal/core/domain/model/order"
)

// NotificationKind tells the sink what happened.
type NotificationKind string

const (
	NotifyOrderChanged   NotificationKind = "order_changed"
	NotifyAlert          NotificationKind = "alert"
	NotifyResendPrompt   NotificationKind = "resend_prompt"
	NotifyDriverAccepted NotificationKind = "driver_accepted"
	NotifyDriverArrived  NotificationKind = "driver_arrived"
	NotifyDriverLocation NotificationKind = "driver_location"
)

// Notification is a user-visible change. Only the fields relevant to Kind are set.
type Notification struct {
	Kind     NotificationKind
	OrderID  string
	BatchKey string
	Status   order.Status
	DriverID string
	Message  string
	At       time.Time
}

// StateSink receives notifications from the engine and the coordinator. It replaces
// any ambient UI handle; implementations must not block.
type StateSink interface {
	Notify(n Notification)
}

// FeedEntry is a notification with its position in a session feed.
type FeedEntry struct {
	Seq uint64
	Notification
}

// NotificationFeed is a StateSink that HTTP clients read back incrementally.
type NotificationFeed interface {
	StateSink
	Since(after uint64, limit int) []FeedEntry
	LastSeq() uint64
}
