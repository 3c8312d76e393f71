// Package service holds the business logic between HTTP handlers and storage.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chatapp/internal/cache"
	"chatapp/internal/config"
	"chatapp/internal/lock"
	"chatapp/internal/middleware"
	"chatapp/internal/models"
	"chatapp/internal/nestedset"
	"chatapp/internal/notifications"
	"chatapp/internal/observability"
	"chatapp/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Comment events published to post watchers.
const (
	EventCommentCreated = "comment_created"
	EventCommentUpdated = "comment_updated"
	EventCommentDeleted = "comment_deleted"
)

// PostEventPublisher fans comment events out to clients watching a post.
type PostEventPublisher interface {
	PublishPostEvent(ctx context.Context, postID uint, eventType string, payload any) error
}

// CommentConfig carries the tunables of the comment engine.
type CommentConfig struct {
	MaxLength     int
	PageMax       int
	NotifyTimeout time.Duration
}

// CommentConfigFrom reads the comment settings out of the app config.
func CommentConfigFrom(cfg *config.Config) CommentConfig {
	return CommentConfig{
		MaxLength:     cfg.CommentMaxLength,
		PageMax:       cfg.CommentPageMax,
		NotifyTimeout: cfg.NotifyTimeout,
	}
}

func (c CommentConfig) withDefaults() CommentConfig {
	if c.MaxLength <= 0 {
		c.MaxLength = 10000
	}
	if c.PageMax <= 0 {
		c.PageMax = 100
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 2 * time.Second
	}
	return c
}

// CommentServiceDeps lists the collaborators of CommentService. Sink, Events
// and IsAdmin are optional.
type CommentServiceDeps struct {
	DB       *gorm.DB
	Comments repository.CommentRepository
	Posts    repository.PostRepository
	Locker   lock.Locker
	Sink     notifications.Sink
	Events   PostEventPublisher
	IsAdmin  func(ctx context.Context, userID uint) (bool, error)
	Config   CommentConfig
}

type CommentService struct {
	db          *gorm.DB
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	locker      lock.Locker
	sink        notifications.Sink
	events      PostEventPublisher
	isAdmin     func(ctx context.Context, userID uint) (bool, error)
	cfg         CommentConfig
	content     *contentPolicy
}

type CreateCommentInput struct {
	User     models.Identity
	PostID   uint
	ParentID *string
	Content  string
	Type     models.CommentType
}

type UpdateCommentInput struct {
	User      models.Identity
	CommentID string
	Content   string
}

type DeleteCommentInput struct {
	User      models.Identity
	CommentID string
}

type ToggleLikeInput struct {
	User      models.Identity
	CommentID string
}

// DeleteResult is the comment as it was before deletion and the number of
// comments removed with it, itself included.
type DeleteResult struct {
	Comment *models.Comment `json:"comment"`
	Removed int64           `json:"removed"`
}

// LikeResult is the state of a comment's like after a toggle.
type LikeResult struct {
	CommentID string `json:"comment_id"`
	Liked     bool   `json:"liked"`
	LikeCount int    `json:"like_count"`
}

func NewCommentService(deps CommentServiceDeps) *CommentService {
	cfg := deps.Config.withDefaults()
	return &CommentService{
		db:          deps.DB,
		commentRepo: deps.Comments,
		postRepo:    deps.Posts,
		locker:      deps.Locker,
		sink:        deps.Sink,
		events:      deps.Events,
		isAdmin:     deps.IsAdmin,
		cfg:         cfg,
		content:     newContentPolicy(cfg.MaxLength),
	}
}

// CreateComment adds a root-level comment, or a reply when ParentID is set.
// The new comment becomes the last child of its parent.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (comment *models.Comment, err error) {
	done := observability.TrackMutation("create")
	span, ctx := observability.NewSpan(ctx, "comment.create", attribute.Int64("post.id", int64(in.PostID)))
	defer func() {
		span.SetError(err)
		span.End()
		done(resultCode(err))
	}()

	if in.User.Anonymous() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if in.Type == "" {
		in.Type = models.CommentTypeText
	}
	if !in.Type.Valid() {
		return nil, models.NewValidationError("Unknown comment type")
	}
	content, err := s.content.clean(in.Content)
	if err != nil {
		return nil, err
	}

	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		p, err := s.commentRepo.FindByID(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if p.PostID != in.PostID {
			return nil, models.NewNotFoundError("Comment", *in.ParentID)
		}
	}

	release, err := s.acquire(ctx, lock.PostKey(in.PostID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		parent *models.Comment
		result nestedset.Result
	)
	err = repository.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		posts := s.postRepo.WithTx(tx)
		comments := s.commentRepo.WithTx(tx)

		locked, err := posts.LockForUpdate(ctx, in.PostID)
		if err != nil {
			return err
		}
		post = locked

		mutator := nestedset.NewMutator(comments)
		if in.ParentID == nil {
			result, err = mutator.InsertRoot(ctx, in.PostID)
		} else {
			// Bounds read before the lock may be stale.
			parent, err = comments.FindByID(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if parent.PostID != in.PostID {
				return models.NewNotFoundError("Comment", *in.ParentID)
			}
			result, err = mutator.InsertReply(ctx, in.PostID, bounds(parent))
		}
		if err != nil {
			return err
		}

		comment = &models.Comment{
			PostID:       in.PostID,
			UserID:       in.User.UserID,
			AuthorName:   in.User.DisplayName,
			AuthorAvatar: in.User.AvatarURL,
			Type:         in.Type,
			Content:      content,
			ParentID:     in.ParentID,
			Left:         result.Plan.Node.Left,
			Right:        result.Plan.Node.Right,
		}
		if err := comments.Insert(ctx, comment); err != nil {
			return err
		}
		return posts.IncrementCommentCount(ctx, in.PostID, 1)
	})
	release()
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, in.PostID)
	observability.TreeShiftedNodes.WithLabelValues("create").Observe(float64(result.Shifted))
	span.AddAttributes(attribute.String("comment.id", comment.ID), attribute.String("tree.plan", result.Plan.String()))
	middleware.Logger.DebugContext(ctx, "comment created",
		slog.String("comment_id", comment.ID),
		slog.Uint64("post_id", uint64(in.PostID)),
		slog.String("plan", result.Plan.String()),
		slog.Int64("shifted", result.Shifted),
	)

	actor := actorOf(in.User)
	switch {
	case parent == nil && post.UserID != in.User.UserID:
		s.notify(ctx, notifications.CommentNotification{
			Owner:     post.UserID,
			Actor:     actor,
			PostID:    post.ID,
			CommentID: comment.ID,
		})
	case parent != nil && parent.UserID != in.User.UserID:
		s.notify(ctx, notifications.CommentReplyNotification{
			ParentAuthor:  parent.UserID,
			Actor:         actor,
			PostID:        post.ID,
			PostOwnerName: post.OwnerName,
			ParentID:      parent.ID,
			CommentID:     comment.ID,
		})
	}
	s.publishEvent(ctx, in.PostID, EventCommentCreated, comment)

	return comment, nil
}

// UpdateComment replaces the content of a text comment. Only its author may
// edit it, and the tree shape never changes.
func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (comment *models.Comment, err error) {
	done := observability.TrackMutation("update")
	span, ctx := observability.NewSpan(ctx, "comment.update", attribute.String("comment.id", in.CommentID))
	defer func() {
		span.SetError(err)
		span.End()
		done(resultCode(err))
	}()

	comment, err = s.commentRepo.FindByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}
	if in.User.Anonymous() || comment.UserID != in.User.UserID {
		return nil, models.NewUnauthorizedError("You can only update your own comments")
	}
	if comment.Type != models.CommentTypeText {
		return nil, models.NewValidationError("Only text comments can be edited")
	}
	content, err := s.content.clean(in.Content)
	if err != nil {
		return nil, err
	}

	if err := s.commentRepo.UpdateContent(ctx, comment.ID, content); err != nil {
		return nil, models.NewInternalError(err)
	}
	comment, err = s.commentRepo.FindByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, comment.PostID, EventCommentUpdated, comment)
	return comment, nil
}

// DeleteComment removes a comment with its whole subtree. The author, the
// post owner and admins may delete.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) (res *DeleteResult, err error) {
	done := observability.TrackMutation("delete")
	span, ctx := observability.NewSpan(ctx, "comment.delete", attribute.String("comment.id", in.CommentID))
	defer func() {
		span.SetError(err)
		span.End()
		done(resultCode(err))
	}()

	comment, err := s.commentRepo.FindByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeDelete(ctx, in.User, comment); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, lock.PostKey(comment.PostID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result nestedset.Result
	err = repository.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		posts := s.postRepo.WithTx(tx)
		comments := s.commentRepo.WithTx(tx)

		if _, err := posts.LockForUpdate(ctx, comment.PostID); err != nil {
			return err
		}
		// An ancestor may have been deleted, or the bounds moved, while we waited.
		current, err := comments.FindByID(ctx, in.CommentID)
		if err != nil {
			return err
		}
		comment = current

		result, err = nestedset.NewMutator(comments).Remove(ctx, comment.PostID, bounds(comment))
		if err != nil {
			return err
		}
		return posts.IncrementCommentCount(ctx, comment.PostID, -int(result.Removed))
	})
	release()
	if err != nil {
		return nil, err
	}

	cache.InvalidatePost(ctx, comment.PostID)
	observability.TreeShiftedNodes.WithLabelValues("delete").Observe(float64(result.Shifted))
	span.AddAttributes(attribute.Int64("tree.removed", result.Removed), attribute.String("tree.plan", result.Plan.String()))
	middleware.Logger.DebugContext(ctx, "comment deleted",
		slog.String("comment_id", comment.ID),
		slog.Uint64("post_id", uint64(comment.PostID)),
		slog.String("plan", result.Plan.String()),
		slog.Int64("removed", result.Removed),
	)

	res = &DeleteResult{Comment: comment, Removed: result.Removed}
	s.publishEvent(ctx, comment.PostID, EventCommentDeleted, res)
	return res, nil
}

// ToggleLike likes the comment for the caller, or removes an existing like.
func (s *CommentService) ToggleLike(ctx context.Context, in ToggleLikeInput) (res *LikeResult, err error) {
	done := observability.TrackMutation("like")
	span, ctx := observability.NewSpan(ctx, "comment.toggle_like", attribute.String("comment.id", in.CommentID))
	defer func() {
		span.SetError(err)
		span.End()
		done(resultCode(err))
	}()

	if in.User.Anonymous() {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if _, err := s.commentRepo.FindByID(ctx, in.CommentID); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, lock.LikeKey(in.CommentID))
	if err != nil {
		return nil, err
	}
	defer release()

	var comment *models.Comment
	err = repository.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		comments := s.commentRepo.WithTx(tx)

		if _, err := comments.FindByID(ctx, in.CommentID); err != nil {
			return err
		}
		liked, err := comments.HasLike(ctx, in.CommentID, in.User.UserID)
		if err != nil {
			return err
		}

		if liked {
			n, err := comments.RemoveLike(ctx, in.CommentID, in.User.UserID)
			if err != nil {
				return err
			}
			if err := comments.AdjustLikeCount(ctx, in.CommentID, -int(n)); err != nil {
				return err
			}
		} else {
			if err := comments.AddLike(ctx, &models.CommentLike{
				CommentID:   in.CommentID,
				UserID:      in.User.UserID,
				DisplayName: in.User.DisplayName,
				AvatarURL:   in.User.AvatarURL,
			}); err != nil {
				return err
			}
			if err := comments.AdjustLikeCount(ctx, in.CommentID, 1); err != nil {
				return err
			}
		}
		res = &LikeResult{CommentID: in.CommentID, Liked: !liked}

		comment, err = comments.FindByID(ctx, in.CommentID)
		return err
	})
	release()
	if err != nil {
		return nil, err
	}
	res.LikeCount = comment.LikeCount

	if res.Liked && comment.UserID != in.User.UserID {
		ownerName := ""
		if post, err := s.postRepo.GetByID(ctx, comment.PostID); err == nil {
			ownerName = post.OwnerName
		}
		s.notify(ctx, notifications.CommentEmojiNotification{
			Author:        comment.UserID,
			Actor:         actorOf(in.User),
			PostID:        comment.PostID,
			PostOwnerName: ownerName,
			ParentID:      comment.ParentID,
			CommentID:     comment.ID,
		})
	}
	return res, nil
}

func (s *CommentService) authorizeDelete(ctx context.Context, user models.Identity, comment *models.Comment) error {
	if user.Anonymous() {
		return models.NewUnauthorizedError("Authentication required")
	}
	if comment.UserID == user.UserID {
		return nil
	}
	post, err := s.postRepo.GetByID(ctx, comment.PostID)
	if err != nil {
		return err
	}
	if post.UserID == user.UserID {
		return nil
	}
	admin, err := s.checkAdmin(ctx, user)
	if err != nil {
		return err
	}
	if !admin {
		return models.NewUnauthorizedError("You can only delete your own comments")
	}
	return nil
}

func (s *CommentService) checkAdmin(ctx context.Context, user models.Identity) (bool, error) {
	if user.IsAdmin {
		return true, nil
	}
	if s.isAdmin == nil || user.Anonymous() {
		return false, nil
	}
	return s.isAdmin(ctx, user.UserID)
}

// acquire takes a structural lock, turning a timeout into a retryable error.
func (s *CommentService) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.locker.Acquire(ctx, key)
	if errors.Is(err, lock.ErrTimeout) {
		middleware.Logger.WarnContext(ctx, "comment lock busy", slog.String("key", key))
		return nil, models.NewBusyError("Comment thread is busy, try again", err)
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

// notify hands n to the sink. Delivery failures are logged and counted, never
// returned: the comment change has already committed.
func (s *CommentService) notify(ctx context.Context, n notifications.Notification) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	if err := s.sink.Publish(ctx, n); err != nil {
		observability.NotificationFailures.WithLabelValues(string(n.Kind())).Inc()
		middleware.Logger.ErrorContext(ctx, "failed to publish notification",
			slog.String("type", string(n.Kind())),
			slog.Uint64("recipient", uint64(n.Recipient())),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CommentService) publishEvent(ctx context.Context, postID uint, eventType string, payload any) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	if err := s.events.PublishPostEvent(ctx, postID, eventType, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish comment event",
			slog.String("event", eventType),
			slog.Uint64("post_id", uint64(postID)),
			slog.String("error", err.Error()),
		)
	}
}

func bounds(c *models.Comment) nestedset.Interval {
	return nestedset.Interval{Left: c.Left, Right: c.Right}
}

func actorOf(user models.Identity) notifications.Actor {
	return notifications.Actor{UserID: user.UserID, Name: user.DisplayName, AvatarURL: user.AvatarURL}
}

// resultCode labels an operation outcome for metrics.
func resultCode(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELED"
	}
	return models.CodeInternal
}
