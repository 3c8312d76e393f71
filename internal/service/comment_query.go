package service

import (
	"context"

	"chatapp/internal/models"
	"chatapp/internal/nestedset"
	"chatapp/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultPageLimit is the page size used when a caller does not pick one.
	DefaultPageLimit = 10
	// peekAhead is how many rows past the page are read to estimate what remains.
	peekAhead = 10
)

type ListCommentsInput struct {
	User     models.Identity
	PostID   uint
	ParentID *string
	Page     models.Page
}

// CommentPage is one page of root-level comments or of a parent's replies.
// RemainComment counts the fetched rows past the page limit, capped by the
// peek-ahead window.
type CommentPage struct {
	ParentComment *models.Comment   `json:"parent_comment,omitempty"`
	Comments      []*models.Comment `json:"comments"`
	RemainComment int               `json:"remain_comment"`
	Page          int               `json:"page"`
	Limit         int               `json:"limit"`
}

// TreeReport is the outcome of verifying a post's comment forest.
type TreeReport struct {
	PostID     uint                  `json:"post_id"`
	Nodes      int                   `json:"nodes"`
	Contiguous bool                  `json:"contiguous"`
	Violations []nestedset.Violation `json:"violations"`
}

// NormalizePage fills in the listing defaults. Only an unset page (both page
// and limit zero) takes the default position and size; a partly set page is
// left for Validate to reject.
func NormalizePage(p models.Page) models.Page {
	if p.Page == 0 && p.Limit == 0 {
		p.Page = 1
		p.Limit = DefaultPageLimit
	}
	if p.SortBy == "" {
		p.SortBy = models.SortByCreatedTime
	}
	return p
}

// ListComments pages through a post's root-level comments, or through the
// direct replies of ParentID.
func (s *CommentService) ListComments(ctx context.Context, in ListCommentsInput) (*CommentPage, error) {
	span, ctx := observability.NewSpan(ctx, "comment.list", attribute.Int64("post.id", int64(in.PostID)))
	defer span.End()

	page := NormalizePage(in.Page)
	if err := page.Validate(s.cfg.PageMax); err != nil {
		return nil, err
	}
	if _, err := s.postRepo.GetByID(ctx, in.PostID); err != nil {
		span.SetError(err)
		return nil, err
	}

	fetch := page.Limit + peekAhead
	out := &CommentPage{Page: page.Page, Limit: page.Limit}

	var (
		rows []*models.Comment
		err  error
	)
	if in.ParentID != nil {
		parent, err := s.commentRepo.FindByID(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.PostID != in.PostID {
			return nil, models.NewNotFoundError("Comment", *in.ParentID)
		}
		out.ParentComment = parent
		rows, err = s.commentRepo.FindChildren(ctx, parent, page, fetch)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
	} else {
		rows, err = s.commentRepo.FindRootLevel(ctx, in.PostID, page, fetch)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	if len(rows) > page.Limit {
		out.RemainComment = len(rows) - page.Limit
		rows = rows[:page.Limit+1]
	}
	marked := make([]*models.Comment, 0, len(rows)+1)
	marked = append(marked, rows...)
	marked = append(marked, out.ParentComment)
	if err := s.markLiked(ctx, in.User, marked); err != nil {
		return nil, err
	}

	out.Comments = rows
	if out.Comments == nil {
		out.Comments = []*models.Comment{}
	}
	return out, nil
}

// GetThread returns a comment and its whole subtree in pre-order. Depth is
// relative to the requested comment.
func (s *CommentService) GetThread(ctx context.Context, user models.Identity, commentID string) ([]*models.Comment, error) {
	span, ctx := observability.NewSpan(ctx, "comment.thread", attribute.String("comment.id", commentID))
	defer span.End()

	root, err := s.commentRepo.FindByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	thread, err := s.commentRepo.FindSubtree(ctx, root.PostID, root.Left, root.Right)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	intervals := make([]nestedset.Interval, len(thread))
	for i, c := range thread {
		intervals[i] = bounds(c)
	}
	for i, depth := range nestedset.Depths(intervals) {
		thread[i].Depth = depth
	}
	span.AddAttributes(attribute.Int("thread.size", len(thread)))

	if err := s.markLiked(ctx, user, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// VerifyTree checks every structural invariant of a post's comment forest.
// Admins only.
func (s *CommentService) VerifyTree(ctx context.Context, user models.Identity, postID uint) (*TreeReport, error) {
	admin, err := s.checkAdmin(ctx, user)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, models.NewUnauthorizedError("Admin access required")
	}
	if _, err := s.postRepo.GetByID(ctx, postID); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	nodes := make([]nestedset.Node, len(comments))
	used := make(map[int]bool, len(comments)*2)
	for i, c := range comments {
		nodes[i] = nestedset.Node{ID: c.ID, ParentID: c.ParentID, Interval: bounds(c)}
		used[c.Left] = true
		used[c.Right] = true
	}

	report := &TreeReport{
		PostID:     postID,
		Nodes:      len(nodes),
		Contiguous: true,
		Violations: nestedset.Check(nodes),
	}
	for slot := 1; slot <= 2*len(nodes); slot++ {
		if !used[slot] {
			report.Contiguous = false
			break
		}
	}
	if report.Violations == nil {
		report.Violations = []nestedset.Violation{}
	}
	return report, nil
}

func (s *CommentService) markLiked(ctx context.Context, user models.Identity, comments []*models.Comment) error {
	if user.Anonymous() {
		return nil
	}
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		if c != nil {
			ids = append(ids, c.ID)
		}
	}
	liked, err := s.commentRepo.LikedCommentIDs(ctx, user.UserID, ids)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if c != nil {
			c.Liked = liked[c.ID]
		}
	}
	return nil
}
