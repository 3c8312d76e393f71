package models

import (
	"time"
)

// Post is the owner of a comment forest. Only the fields the comment engine
// reads or maintains live here; the rest of post CRUD belongs elsewhere.
type Post struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	OwnerName string `gorm:"size:100" json:"owner_name"`
	Title     string `gorm:"not null" json:"title"`
	Content   string `gorm:"type:text" json:"content"`
	// CommentsCount is maintained by the comment service on every create/delete
	CommentsCount int       `gorm:"not null;default:0" json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
