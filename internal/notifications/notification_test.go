package notifications

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNotification_ContentAndLink(t *testing.T) {
	t.Parallel()
	ana := Actor{UserID: 2, Name: "ana", AvatarURL: "https://cdn/ana.png"}

	tests := []struct {
		name      string
		n         Notification
		kind      Type
		recipient uint
		content   string
		link      string
	}{
		{
			name:      "comment on post",
			n:         CommentNotification{Owner: 1, Actor: ana, PostID: 9, CommentID: "c1"},
			kind:      TypeComment,
			recipient: 1,
			content:   "**ana** commented on **your post**",
			link:      "9/c1",
		},
		{
			name:      "reply",
			n:         CommentReplyNotification{ParentAuthor: 3, Actor: ana, PostID: 9, PostOwnerName: "bob", ParentID: "c1", CommentID: "c2"},
			kind:      TypeCommentReply,
			recipient: 3,
			content:   "**ana** reply to your comment about **bob's post**",
			link:      "9/c1/c2",
		},
		{
			name:      "like on reply",
			n:         CommentEmojiNotification{Author: 3, Actor: ana, PostID: 9, PostOwnerName: "bob", ParentID: strPtr("c1"), CommentID: "c2"},
			kind:      TypeCommentEmoji,
			recipient: 3,
			content:   "**ana** express your feelings about your comment about **bob's post**",
			link:      "9/c1/c2",
		},
		{
			name:      "like on root comment",
			n:         CommentEmojiNotification{Author: 3, Actor: ana, PostID: 9, PostOwnerName: "bob", CommentID: "c1"},
			kind:      TypeCommentEmoji,
			recipient: 3,
			content:   "**ana** express your feelings about your comment about **bob's post**",
			link:      "9/c1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.n.Kind())
			assert.Equal(t, tt.recipient, tt.n.Recipient())
			assert.Equal(t, tt.content, tt.n.Content())
			assert.Equal(t, tt.link, tt.n.Link())
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	n := CommentReplyNotification{
		ParentAuthor: 3, Actor: Actor{Name: "ana", AvatarURL: "a.png"},
		PostID: 9, PostOwnerName: "bob", ParentID: "p", CommentID: "c",
	}

	raw, err := Encode(n, at)
	require.NoError(t, err)

	var got struct {
		Type    string  `json:"type"`
		Payload Message `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "notification", got.Type)
	assert.Equal(t, uint(3), got.Payload.UserID)
	assert.Equal(t, TypeCommentReply, got.Payload.NotifyType)
	assert.Equal(t, "9/p/c", got.Payload.Link)
	assert.Equal(t, "a.png", got.Payload.Image)
	assert.True(t, at.Equal(got.Payload.CreatedAt))
}
