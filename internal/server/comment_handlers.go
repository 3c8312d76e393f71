package server

import (
	"chatapp/internal/middleware"
	"chatapp/internal/models"
	"chatapp/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createCommentRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id"`
	Type     string `json:"type"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

// ListComments returns one page of a post's comments (public)
// @Summary List comments
// @Description Root-level comments of a post, or the direct replies of parent_id
// @Tags comments
// @Produce json
// @Param id path int true "Post ID"
// @Param parent_id query string false "Parent comment ID"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 10)"
// @Param sort_by query string false "ctime for newest first"
// @Success 200 {object} service.CommentPage
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comments [get]
func (s *Server) ListComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	parentID, err := optionalUUID(c.Query("parent_id"), "parent_id")
	if err != nil {
		return respondAppError(c, err)
	}

	pg, err := parsePage(c)
	if err != nil {
		return respondAppError(c, err)
	}

	page, err := s.commentService.ListComments(c.UserContext(), service.ListCommentsInput{
		User:     middleware.IdentityFrom(c),
		PostID:   postID,
		ParentID: parentID,
		Page:     pg,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(page)
}

// CreateComment adds a comment or a reply to a post (protected)
// @Summary Create comment
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body createCommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req createCommentRequest
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	parentID, err := optionalUUID(req.ParentID, "parent_id")
	if err != nil {
		return respondAppError(c, err)
	}

	created, err := s.commentService.CreateComment(c.UserContext(), service.CreateCommentInput{
		User:     middleware.IdentityFrom(c),
		PostID:   postID,
		ParentID: parentID,
		Content:  req.Content,
		Type:     models.CommentType(req.Type),
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetThread returns a comment with its whole reply subtree (public)
// @Summary Comment thread
// @Tags comments
// @Produce json
// @Param commentId path string true "Comment ID"
// @Success 200 {array} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /comments/{commentId}/thread [get]
func (s *Server) GetThread(c *fiber.Ctx) error {
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}

	thread, err := s.commentService.GetThread(c.UserContext(), middleware.IdentityFrom(c), commentID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(thread)
}

// UpdateComment replaces a comment's content (author only)
// @Summary Update comment
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param commentId path string true "Comment ID"
// @Param request body updateCommentRequest true "New content"
// @Success 200 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /comments/{commentId} [patch]
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}

	var req updateCommentRequest
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}

	updated, err := s.commentService.UpdateComment(c.UserContext(), service.UpdateCommentInput{
		User:      middleware.IdentityFrom(c),
		CommentID: commentID,
		Content:   req.Content,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(updated)
}

// DeleteComment removes a comment and all of its replies (author, post owner or admin)
// @Summary Delete comment
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param commentId path string true "Comment ID"
// @Success 200 {object} service.DeleteResult
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /comments/{commentId} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}

	res, err := s.commentService.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		User:      middleware.IdentityFrom(c),
		CommentID: commentID,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(res)
}

// ToggleLike likes a comment, or removes the caller's like (protected)
// @Summary Toggle comment like
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param commentId path string true "Comment ID"
// @Success 200 {object} service.LikeResult
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /comments/{commentId}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}

	res, err := s.commentService.ToggleLike(c.UserContext(), service.ToggleLikeInput{
		User:      middleware.IdentityFrom(c),
		CommentID: commentID,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(res)
}

// VerifyCommentTree reports structural problems in a post's comment forest (admin)
// @Summary Verify comment tree
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} service.TreeReport
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/posts/{id}/comments/verify [get]
func (s *Server) VerifyCommentTree(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	report, err := s.commentService.VerifyTree(c.UserContext(), middleware.IdentityFrom(c), postID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(report)
}
