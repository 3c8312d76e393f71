// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"

	"chatapp/internal/models"

	"gorm.io/gorm"
)

// CommentRepository is the interval tree store for comments. Range methods
// are scoped to one post and never check tree invariants; callers must hold
// the post's structural lock for anything that moves bounds.
type CommentRepository interface {
	WithTx(tx *gorm.DB) CommentRepository

	Insert(ctx context.Context, comment *models.Comment) error
	FindByID(ctx context.Context, id string) (*models.Comment, error)
	FindMaxRight(ctx context.Context, postID uint) (int, error)
	FindRootLevel(ctx context.Context, postID uint, page models.Page, fetch int) ([]*models.Comment, error)
	FindChildren(ctx context.Context, parent *models.Comment, page models.Page, fetch int) ([]*models.Comment, error)
	FindSubtree(ctx context.Context, postID uint, left, right int) ([]*models.Comment, error)
	ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error)

	ShiftRight(ctx context.Context, postID uint, threshold, delta int) (int64, error)
	ShiftLeft(ctx context.Context, postID uint, threshold, delta int) (int64, error)
	DeleteRange(ctx context.Context, postID uint, left, right int) (int64, error)

	UpdateContent(ctx context.Context, id, content string) error
	HasLike(ctx context.Context, commentID string, userID uint) (bool, error)
	AddLike(ctx context.Context, like *models.CommentLike) error
	RemoveLike(ctx context.Context, commentID string, userID uint) (int64, error)
	AdjustLikeCount(ctx context.Context, commentID string, delta int) error
	LikedCommentIDs(ctx context.Context, userID uint, commentIDs []string) (map[string]bool, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) WithTx(tx *gorm.DB) CommentRepository {
	return &commentRepository{db: tx}
}

func (r *commentRepository) Insert(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *commentRepository) FindByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Comment", id)
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// FindMaxRight returns the greatest right bound in the post, 0 when it has no
// comments. The last root-level node always holds it.
func (r *commentRepository) FindMaxRight(ctx context.Context, postID uint) (int, error) {
	var maxRight int
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("COALESCE(MAX(rgt), 0)").
		Where("post_id = ?", postID).
		Scan(&maxRight).Error
	return maxRight, err
}

func (r *commentRepository) FindRootLevel(ctx context.Context, postID uint, page models.Page, fetch int) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.paged(ctx, page, fetch).
		Where("post_id = ? AND parent_id IS NULL", postID).
		Find(&comments).Error
	return comments, err
}

// FindChildren lists the direct replies of parent. The bounds filter keeps
// the scan inside the parent's range.
func (r *commentRepository) FindChildren(ctx context.Context, parent *models.Comment, page models.Page, fetch int) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.paged(ctx, page, fetch).
		Where("post_id = ? AND parent_id = ? AND lft > ? AND rgt <= ?",
			parent.PostID, parent.ID, parent.Left, parent.Right).
		Find(&comments).Error
	return comments, err
}

// FindSubtree returns every comment inside the closed range in pre-order.
func (r *commentRepository) FindSubtree(ctx context.Context, postID uint, left, right int) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Preload("Likes").
		Where("post_id = ? AND lft >= ? AND rgt <= ?", postID, left, right).
		Order("lft ASC").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("lft ASC").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) ShiftRight(ctx context.Context, postID uint, threshold, delta int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("post_id = ? AND rgt >= ?", postID, threshold).
		UpdateColumn("rgt", gorm.Expr("rgt + ?", delta))
	return res.RowsAffected, res.Error
}

func (r *commentRepository) ShiftLeft(ctx context.Context, postID uint, threshold, delta int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("post_id = ? AND lft > ?", postID, threshold).
		UpdateColumn("lft", gorm.Expr("lft + ?", delta))
	return res.RowsAffected, res.Error
}

// DeleteRange removes every comment inside the closed range together with
// its likes and returns how many comments went away.
func (r *commentRepository) DeleteRange(ctx context.Context, postID uint, left, right int) (int64, error) {
	db := r.db.WithContext(ctx)
	inRange := db.Model(&models.Comment{}).
		Select("id").
		Where("post_id = ? AND lft >= ? AND rgt <= ?", postID, left, right)

	if err := db.Where("comment_id IN (?)", inRange).Delete(&models.CommentLike{}).Error; err != nil {
		return 0, err
	}

	res := db.Where("post_id = ? AND lft >= ? AND rgt <= ?", postID, left, right).Delete(&models.Comment{})
	return res.RowsAffected, res.Error
}

func (r *commentRepository) UpdateContent(ctx context.Context, id, content string) error {
	return r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ?", id).
		Update("content", content).Error
}

func (r *commentRepository) HasLike(ctx context.Context, commentID string, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CommentLike{}).
		Where("comment_id = ? AND user_id = ?", commentID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *commentRepository) AddLike(ctx context.Context, like *models.CommentLike) error {
	return r.db.WithContext(ctx).Create(like).Error
}

func (r *commentRepository) RemoveLike(ctx context.Context, commentID string, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("comment_id = ? AND user_id = ?", commentID, userID).
		Delete(&models.CommentLike{})
	return res.RowsAffected, res.Error
}

func (r *commentRepository) AdjustLikeCount(ctx context.Context, commentID string, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ?", commentID).
		UpdateColumn("like_count", gorm.Expr("CASE WHEN like_count + ? < 0 THEN 0 ELSE like_count + ? END", delta, delta)).Error
}

// LikedCommentIDs reports which of commentIDs userID has liked.
func (r *commentRepository) LikedCommentIDs(ctx context.Context, userID uint, commentIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool, len(commentIDs))
	if userID == 0 || len(commentIDs) == 0 {
		return liked, nil
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.CommentLike{}).
		Where("user_id = ? AND comment_id IN ?", userID, commentIDs).
		Pluck("comment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

func (r *commentRepository) paged(ctx context.Context, page models.Page, fetch int) *gorm.DB {
	order := "created_at ASC"
	if page.Descending() {
		order = "created_at DESC"
	}
	return r.db.WithContext(ctx).
		Preload("Likes").
		Order(order).
		Order("lft ASC").
		Offset(page.Offset()).
		Limit(fetch)
}
