// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommentType is the kind of body a comment carries.
type CommentType string

const (
	CommentTypeText    CommentType = "text"
	CommentTypeImage   CommentType = "image"
	CommentTypeSticker CommentType = "sticker"
)

// Valid reports whether t is a known comment type.
func (t CommentType) Valid() bool {
	switch t {
	case CommentTypeText, CommentTypeImage, CommentTypeSticker:
		return true
	}
	return false
}

// Comment is one node of a post's comment forest. Left and Right hold the
// node's nested-set bounds, comparable only between comments of the same post.
type Comment struct {
	ID           string        `gorm:"type:uuid;primaryKey" json:"id"`
	PostID       uint          `gorm:"not null;index:idx_comments_post_lft,priority:1;index:idx_comments_post_rgt,priority:1" json:"post_id"`
	UserID       uint          `gorm:"not null;index" json:"user_id"`
	AuthorName   string        `gorm:"size:100" json:"author_name"`
	AuthorAvatar string        `json:"author_avatar"`
	Type         CommentType   `gorm:"type:varchar(16);not null;default:text" json:"type"`
	Content      string        `gorm:"type:text;not null" json:"content"`
	ParentID     *string       `gorm:"type:uuid;index" json:"parent_id"`
	Left         int           `gorm:"column:lft;not null;index:idx_comments_post_lft,priority:2" json:"left"`
	Right        int           `gorm:"column:rgt;not null;index:idx_comments_post_rgt,priority:2" json:"right"`
	LikeCount    int           `gorm:"not null;default:0" json:"like_count"`
	Likes        []CommentLike `gorm:"foreignKey:CommentID;constraint:OnDelete:CASCADE" json:"liked_by,omitempty"`
	IsDeleted    bool          `gorm:"not null;default:false" json:"is_deleted"`
	// Liked indicates whether the requesting user liked this comment (computed)
	Liked bool `gorm:"-" json:"liked"`
	// Depth is set by thread views only (computed)
	Depth     int       `gorm:"-" json:"depth,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (c *Comment) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsRoot reports whether the comment is attached directly to its post.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Width is the number of interval slots the comment and its subtree occupy.
func (c *Comment) Width() int {
	return c.Right - c.Left + 1
}

// CommentLike records one user's like on a comment.
// The combination of CommentID and UserID is the primary key.
type CommentLike struct {
	CommentID   string    `gorm:"type:uuid;primaryKey" json:"-"`
	UserID      uint      `gorm:"primaryKey" json:"user_id"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
}
