package repository

import (
	"context"
	"regexp"
	"testing"

	"chatapp/internal/cache"
	"chatapp/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_LockForUpdate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "posts"."id" = $1 ORDER BY "posts"."id" LIMIT $2 FOR UPDATE`)).
		WithArgs(3, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).AddRow(3, 10, "hello"))

	post, err := repo.LockForUpdate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(10), post.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_LockForUpdate_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.LockForUpdate(context.Background(), 3)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostRepository_IncrementCommentCount(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "comments_count"=comments_count + $1 WHERE id = $2`)).
		WithArgs(-3, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.IncrementCommentCount(context.Background(), 4, -3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByIDUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	db := setupSQLite(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	post := &models.Post{UserID: 2, Title: "cached"}
	require.NoError(t, repo.Create(ctx, post))

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Title)
	assert.True(t, mr.Exists(cache.PostKey(post.ID)))

	require.NoError(t, repo.IncrementCommentCount(ctx, post.ID, 2))
	assert.False(t, mr.Exists(cache.PostKey(post.ID)))

	got, err = repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CommentsCount)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
