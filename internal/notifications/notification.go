// Package notifications provides real-time notification delivery and management.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Type names a notification kind on the wire.
type Type string

const (
	TypeComment      Type = "COMMENT"
	TypeCommentReply Type = "COMMENT_REPLY"
	TypeCommentEmoji Type = "COMMENT_EMOJI"
)

// Actor is the user whose action raised a notification.
type Actor struct {
	UserID    uint
	Name      string
	AvatarURL string
}

// Notification is one of CommentNotification, CommentReplyNotification or
// CommentEmojiNotification. The set is closed.
type Notification interface {
	Kind() Type
	Recipient() uint
	From() Actor
	Content() string
	Link() string

	notification()
}

// Sink accepts notifications for delivery. Callers treat delivery as
// best-effort.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}

// CommentNotification tells a post owner that someone commented on the post.
type CommentNotification struct {
	Owner     uint
	Actor     Actor
	PostID    uint
	CommentID string
}

func (n CommentNotification) Kind() Type { return TypeComment }
func (n CommentNotification) Recipient() uint { return n.Owner }
func (n CommentNotification) From() Actor { return n.Actor }
func (CommentNotification) notification() {}

func (n CommentNotification) Content() string {
	return fmt.Sprintf("**%s** commented on **your post**", n.Actor.Name)
}

// Link points at the comment. Only root-level comments notify the post owner;
// replies go to the parent author instead.
func (n CommentNotification) Link() string {
	return fmt.Sprintf("%d/%s", n.PostID, n.CommentID)
}

// CommentReplyNotification tells a comment author that someone replied.
type CommentReplyNotification struct {
	ParentAuthor  uint
	Actor         Actor
	PostID        uint
	PostOwnerName string
	ParentID      string
	CommentID     string
}

func (n CommentReplyNotification) Kind() Type { return TypeCommentReply }
func (n CommentReplyNotification) Recipient() uint { return n.ParentAuthor }
func (n CommentReplyNotification) From() Actor { return n.Actor }
func (CommentReplyNotification) notification() {}

func (n CommentReplyNotification) Content() string {
	return fmt.Sprintf("**%s** reply to your comment about **%s's post**", n.Actor.Name, n.PostOwnerName)
}

func (n CommentReplyNotification) Link() string {
	return fmt.Sprintf("%d/%s/%s", n.PostID, n.ParentID, n.CommentID)
}

// CommentEmojiNotification tells a comment author that someone liked it.
type CommentEmojiNotification struct {
	Author        uint
	Actor         Actor
	PostID        uint
	PostOwnerName string
	ParentID      *string
	CommentID     string
}

func (n CommentEmojiNotification) Kind() Type { return TypeCommentEmoji }
func (n CommentEmojiNotification) Recipient() uint { return n.Author }
func (n CommentEmojiNotification) From() Actor { return n.Actor }
func (CommentEmojiNotification) notification() {}

func (n CommentEmojiNotification) Content() string {
	return fmt.Sprintf("**%s** express your feelings about your comment about **%s's post**", n.Actor.Name, n.PostOwnerName)
}

func (n CommentEmojiNotification) Link() string {
	if n.ParentID != nil {
		return fmt.Sprintf("%d/%s/%s", n.PostID, *n.ParentID, n.CommentID)
	}
	return fmt.Sprintf("%d/%s", n.PostID, n.CommentID)
}

// Event is the envelope for every message pushed to websocket clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Message is the payload of a "notification" event.
type Message struct {
	UserID     uint      `json:"user_id"`
	NotifyType Type      `json:"notify_type"`
	Link       string    `json:"notify_link"`
	Content    string    `json:"notify_content"`
	Image      string    `json:"notify_image"`
	CreatedAt  time.Time `json:"created_at"`
}

// Encode renders n as a "notification" event.
func Encode(n Notification, at time.Time) ([]byte, error) {
	return json.Marshal(Event{
		Type: "notification",
		Payload: Message{
			UserID:     n.Recipient(),
			NotifyType: n.Kind(),
			Link:       n.Link(),
			Content:    n.Content(),
			Image:      n.From().AvatarURL,
			CreatedAt:  at.UTC(),
		},
	})
}
