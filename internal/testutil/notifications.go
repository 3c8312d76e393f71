package testutil

import (
	"context"
	"sync"

	"chatapp/internal/notifications"
)

// PostEvent is one comment event captured by NotificationRecorder.
type PostEvent struct {
	PostID  uint
	Type    string
	Payload any
}

// NotificationRecorder is an in-memory notification sink and post event
// publisher. Set Err to make every publish fail.
type NotificationRecorder struct {
	mu     sync.Mutex
	notes  []notifications.Notification
	events []PostEvent
	Err    error
}

// Publish records n.
func (r *NotificationRecorder) Publish(_ context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.notes = append(r.notes, n)
	return nil
}

// PublishPostEvent records a comment event.
func (r *NotificationRecorder) PublishPostEvent(_ context.Context, postID uint, eventType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, PostEvent{PostID: postID, Type: eventType, Payload: payload})
	return nil
}

// Notifications returns a copy of what was published so far.
func (r *NotificationRecorder) Notifications() []notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Notification(nil), r.notes...)
}

// Events returns a copy of the recorded post events.
func (r *NotificationRecorder) Events() []PostEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PostEvent(nil), r.events...)
}

// Reset forgets everything recorded.
func (r *NotificationRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
	r.events = nil
}
