package seed

import (
	"context"
	"testing"
	"time"

	"chatapp/internal/lock"
	"chatapp/internal/models"
	"chatapp/internal/repository"
	"chatapp/internal/service"
	"chatapp/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSeeder(t *testing.T) (*Seeder, *gorm.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	svc := service.NewCommentService(service.CommentServiceDeps{
		DB:       db,
		Comments: repository.NewCommentRepository(db),
		Posts:    repository.NewPostRepository(db),
		Locker:   lock.NewLocal(5 * time.Second),
	})
	return NewSeeder(db, svc, 42), db
}

func TestSeeder_RunBuildsValidForests(t *testing.T) {
	s, db := newSeeder(t)

	summary, err := s.Run(context.Background(), Options{
		NumUsers:        5,
		NumPosts:        3,
		CommentsPerPost: 25,
		RootRatio:       0.3,
		LikeRatio:       0.5,
		Workers:         3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Posts)
	assert.Equal(t, int64(75), summary.Comments)
	assert.Empty(t, summary.Broken)

	var comments int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	assert.Equal(t, int64(75), comments)

	var likes int64
	require.NoError(t, db.Model(&models.CommentLike{}).Count(&likes).Error)
	assert.Equal(t, summary.Likes, likes)

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	for _, p := range posts {
		assert.Equal(t, 25, p.CommentsCount, "post %d", p.ID)

		var maxRight int
		require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", p.ID).
			Select("MAX(rgt)").Scan(&maxRight).Error)
		assert.Equal(t, 50, maxRight, "post %d", p.ID)
	}
}

func TestSeeder_RunRejectsEmptyOptions(t *testing.T) {
	s, _ := newSeeder(t)

	_, err := s.Run(context.Background(), Options{NumPosts: 1})
	assert.Error(t, err)
}

func TestSeeder_Users(t *testing.T) {
	s, _ := newSeeder(t)

	users := s.Users(4)
	require.Len(t, users, 4)
	for i, u := range users {
		assert.Equal(t, uint(i+1), u.UserID)
		assert.NotEmpty(t, u.DisplayName)
		assert.Contains(t, u.AvatarURL, "https://")
	}
}

func TestSeeder_ClearAll(t *testing.T) {
	s, db := newSeeder(t)

	_, err := s.Run(context.Background(), Options{NumUsers: 2, NumPosts: 1, CommentsPerPost: 5, LikeRatio: 1})
	require.NoError(t, err)
	require.NoError(t, s.ClearAll())

	for _, model := range []any{&models.Post{}, &models.Comment{}, &models.CommentLike{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T", model)
	}
}
