// Package seed generates demo posts with random comment threads. Every
// comment goes through the comment service, so seeded trees are built by the
// same interval arithmetic as production writes.
package seed

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"chatapp/internal/models"
	"chatapp/internal/repository"
	"chatapp/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/sourcegraph/conc/pool"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	NumPosts        int
	CommentsPerPost int
	// RootRatio is the chance that a new comment starts a new thread
	RootRatio float64
	LikeRatio float64
	Workers   int
}

// DefaultOptions is what cmd/seed runs without flags.
var DefaultOptions = Options{
	NumUsers:        20,
	NumPosts:        10,
	CommentsPerPost: 60,
	RootRatio:       0.3,
	LikeRatio:       0.4,
	Workers:         4,
}

// Summary counts what a run created.
type Summary struct {
	Posts    int
	Comments int64
	Likes    int64
	// Broken lists posts whose verified forest reported violations
	Broken []uint
}

// Seeder writes demo data.
type Seeder struct {
	db    *gorm.DB
	posts repository.PostRepository
	svc   *service.CommentService
	fake  *gofakeit.Faker
}

// NewSeeder creates a seeder. seed fixes the generated content for repeatable runs.
func NewSeeder(db *gorm.DB, svc *service.CommentService, seed int64) *Seeder {
	return &Seeder{
		db:    db,
		posts: repository.NewPostRepository(db),
		svc:   svc,
		fake:  gofakeit.New(seed),
	}
}

// ClearAll removes every post, comment and like.
func (s *Seeder) ClearAll() error {
	all := s.db.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&models.CommentLike{}, &models.Comment{}, &models.Post{}} {
		if err := all.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Users builds n fake callers. User IDs start at 1.
func (s *Seeder) Users(n int) []models.Identity {
	users := make([]models.Identity, n)
	for i := range users {
		users[i] = models.Identity{
			UserID:      uint(i + 1),
			DisplayName: s.fake.Username(),
			AvatarURL:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", s.fake.UUID()),
		}
	}
	return users
}

// Run creates the posts and fills their threads, several posts at a time.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.NumUsers <= 0 || opts.NumPosts <= 0 {
		return nil, fmt.Errorf("seed needs at least one user and one post")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	users := s.Users(opts.NumUsers)

	posts := make([]*models.Post, 0, opts.NumPosts)
	for i := 0; i < opts.NumPosts; i++ {
		owner := s.pick(users)
		post := &models.Post{
			UserID:    owner.UserID,
			OwnerName: owner.DisplayName,
			Title:     s.fake.Sentence(5),
			Content:   s.fake.Paragraph(1, 3, 8, "\n"),
		}
		if err := s.posts.Create(ctx, post); err != nil {
			return nil, fmt.Errorf("create post: %w", err)
		}
		posts = append(posts, post)
	}

	summary := &Summary{Posts: len(posts)}
	var comments, likes atomic.Int64

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(opts.Workers)
	for _, post := range posts {
		p.Go(func(ctx context.Context) error {
			c, l, err := s.fillThread(ctx, post, users, opts)
			comments.Add(c)
			likes.Add(l)
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	summary.Comments = comments.Load()
	summary.Likes = likes.Load()

	moderator := models.Identity{UserID: users[0].UserID, IsAdmin: true}
	for _, post := range posts {
		report, err := s.svc.VerifyTree(ctx, moderator, post.ID)
		if err != nil {
			return nil, fmt.Errorf("verify post %d: %w", post.ID, err)
		}
		if len(report.Violations) > 0 || !report.Contiguous {
			summary.Broken = append(summary.Broken, post.ID)
		}
	}
	return summary, nil
}

// fillThread grows one post's forest: each comment is either a new root or a
// reply to a random earlier comment.
func (s *Seeder) fillThread(ctx context.Context, post *models.Post, users []models.Identity, opts Options) (int64, int64, error) {
	var created []*models.Comment
	var likes int64

	for i := 0; i < opts.CommentsPerPost; i++ {
		in := service.CreateCommentInput{
			User:    s.pick(users),
			PostID:  post.ID,
			Content: s.fake.Sentence(s.fake.Number(3, 20)),
		}
		if len(created) > 0 && s.fake.Float64Range(0, 1) >= opts.RootRatio {
			parent := created[s.fake.Number(0, len(created)-1)]
			in.ParentID = &parent.ID
		}

		comment, err := s.svc.CreateComment(ctx, in)
		if err != nil {
			return int64(len(created)), likes, fmt.Errorf("post %d comment %d: %w", post.ID, i, err)
		}
		created = append(created, comment)

		if s.fake.Float64Range(0, 1) < opts.LikeRatio {
			res, err := s.svc.ToggleLike(ctx, service.ToggleLikeInput{User: s.pick(users), CommentID: comment.ID})
			if err != nil {
				return int64(len(created)), likes, fmt.Errorf("like comment %s: %w", comment.ID, err)
			}
			if res.Liked {
				likes++
			}
		}
	}

	log.Printf("seeded post %d with %d comments", post.ID, len(created))
	return int64(len(created)), likes, nil
}

func (s *Seeder) pick(users []models.Identity) models.Identity {
	return users[s.fake.Number(0, len(users)-1)]
}
