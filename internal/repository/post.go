package repository

import (
	"context"
	"errors"

	"chatapp/internal/cache"
	"chatapp/internal/database"
	"chatapp/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository is the slice of post storage the comment engine relies on.
type PostRepository interface {
	WithTx(tx *gorm.DB) PostRepository
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	LockForUpdate(ctx context.Context, id uint) (*models.Post, error)
	IncrementCommentCount(ctx context.Context, id uint, delta int) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) WithTx(tx *gorm.DB) PostRepository {
	return &postRepository{db: tx}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// GetByID reads a post through the redis cache.
func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() (models.Post, error) {
		var fresh models.Post
		err := r.db.WithContext(ctx).First(&fresh, id).Error
		return fresh, err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Post", id)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// LockForUpdate reads a post bypassing the cache and, on postgres, holds its
// row lock until the surrounding transaction ends.
func (r *postRepository) LockForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	q := r.db.WithContext(ctx)
	if database.IsPostgres(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var post models.Post
	err := q.First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Post", id)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) IncrementCommentCount(ctx context.Context, id uint, delta int) error {
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("comments_count", gorm.Expr("comments_count + ?", delta)).Error
	if err == nil {
		cache.InvalidatePost(ctx, id)
	}
	return err
}
