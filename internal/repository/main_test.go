package repository

import (
	"testing"
	"time"

	"chatapp/internal/models"
	"chatapp/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// seedComment stores a comment with fixed bounds, bypassing the mutator.
func seedComment(t *testing.T, db *gorm.DB, id string, postID uint, parentID *string, left, right int, minute int) *models.Comment {
	t.Helper()
	c := &models.Comment{
		ID:        id,
		PostID:    postID,
		UserID:    1,
		Type:      models.CommentTypeText,
		Content:   "comment " + id,
		ParentID:  parentID,
		Left:      left,
		Right:     right,
		CreatedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func strPtr(s string) *string { return &s }

func setupSQLite(t *testing.T) *gorm.DB {
	return testutil.NewSQLiteDB(t)
}
