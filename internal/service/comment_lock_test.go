package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatapp/internal/lock"
	"chatapp/internal/models"
	"chatapp/internal/repository"
	"chatapp/internal/testutil"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// lockAudit tracks who holds which lock key and records tree writes made
// without the owning post's lock.
type lockAudit struct {
	mu         sync.Mutex
	holders    map[string]int
	acquired   map[string]int
	maxHolders int
	violations []string
}

func newLockAudit() *lockAudit {
	return &lockAudit{holders: map[string]int{}, acquired: map[string]int{}}
}

func (a *lockAudit) requirePostLock(op string, postID uint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holders[lock.PostKey(postID)] == 0 {
		a.violations = append(a.violations, fmt.Sprintf("%s on post %d outside its lock", op, postID))
	}
}

type auditedLocker struct {
	inner lock.Locker
	audit *lockAudit
}

func (l auditedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	release, err := l.inner.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	a := l.audit
	a.mu.Lock()
	a.holders[key]++
	a.acquired[key]++
	if a.holders[key] > a.maxHolders {
		a.maxHolders = a.holders[key]
	}
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.holders[key]--
			a.mu.Unlock()
			release()
		})
	}, nil
}

// auditedComments checks every bound-moving write against the audit.
// beforeInsert, when set, runs inside the critical section of every create.
type auditedComments struct {
	repository.CommentRepository
	audit        *lockAudit
	beforeInsert func()
}

func (r auditedComments) WithTx(tx *gorm.DB) repository.CommentRepository {
	r.CommentRepository = r.CommentRepository.WithTx(tx)
	return r
}

func (r auditedComments) Insert(ctx context.Context, c *models.Comment) error {
	r.audit.requirePostLock("Insert", c.PostID)
	if r.beforeInsert != nil {
		r.beforeInsert()
	}
	return r.CommentRepository.Insert(ctx, c)
}

func (r auditedComments) FindMaxRight(ctx context.Context, postID uint) (int, error) {
	r.audit.requirePostLock("FindMaxRight", postID)
	return r.CommentRepository.FindMaxRight(ctx, postID)
}

func (r auditedComments) ShiftRight(ctx context.Context, postID uint, threshold, delta int) (int64, error) {
	r.audit.requirePostLock("ShiftRight", postID)
	return r.CommentRepository.ShiftRight(ctx, postID, threshold, delta)
}

func (r auditedComments) ShiftLeft(ctx context.Context, postID uint, threshold, delta int) (int64, error) {
	r.audit.requirePostLock("ShiftLeft", postID)
	return r.CommentRepository.ShiftLeft(ctx, postID, threshold, delta)
}

func (r auditedComments) DeleteRange(ctx context.Context, postID uint, left, right int) (int64, error) {
	r.audit.requirePostLock("DeleteRange", postID)
	return r.CommentRepository.DeleteRange(ctx, postID, left, right)
}

// knownPost answers lookups of one post from memory, so callers reach the
// lock without waiting on the single sqlite connection.
type knownPost struct {
	repository.PostRepository
	post models.Post
}

func (p knownPost) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	if id != p.post.ID {
		return p.PostRepository.GetByID(ctx, id)
	}
	post := p.post
	return &post, nil
}

func newAuditedService(t *testing.T, locker lock.Locker, beforeInsert func()) (*CommentService, *lockAudit, *models.Post) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	post := &models.Post{UserID: owner.UserID, OwnerName: owner.DisplayName, Title: "audited"}
	require.NoError(t, db.Create(post).Error)

	audit := newLockAudit()
	svc := NewCommentService(CommentServiceDeps{
		DB:       db,
		Comments: auditedComments{CommentRepository: repository.NewCommentRepository(db), audit: audit, beforeInsert: beforeInsert},
		Posts:    knownPost{PostRepository: repository.NewPostRepository(db), post: *post},
		Locker:   auditedLocker{inner: locker, audit: audit},
	})
	return svc, audit, post
}

func TestCommentTree_StructuralWritesHoldPostLock(t *testing.T) {
	svc, audit, post := newAuditedService(t, lock.NewLocal(5*time.Second), nil)
	ctx := context.Background()

	root, err := svc.CreateComment(ctx, CreateCommentInput{User: ana, PostID: post.ID, Content: "root"})
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		replies []*models.Comment
		writes  atomic.Int64
	)
	writes.Add(1)

	var wg conc.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Go(func() {
			in := CreateCommentInput{User: bob, PostID: post.ID, Content: fmt.Sprintf("c%d", i)}
			if i%3 != 0 {
				in.ParentID = &root.ID
			}
			c, err := svc.CreateComment(ctx, in)
			if !assert.NoError(t, err) {
				return
			}
			writes.Add(1)
			mu.Lock()
			replies = append(replies, c)
			mu.Unlock()
		})
	}
	wg.Wait()

	wg = conc.WaitGroup{}
	for _, c := range replies[:4] {
		wg.Go(func() {
			_, err := svc.DeleteComment(ctx, DeleteCommentInput{User: owner, CommentID: c.ID})
			if assert.NoError(t, err) {
				writes.Add(1)
			}
		})
	}
	wg.Wait()

	audit.mu.Lock()
	defer audit.mu.Unlock()
	assert.Empty(t, audit.violations)
	assert.Equal(t, 1, audit.maxHolders)
	assert.Equal(t, int(writes.Load()), audit.acquired[lock.PostKey(post.ID)])
	assert.Zero(t, audit.holders[lock.PostKey(post.ID)])
}

func TestCommentTree_SecondWriterWaitsForPostLock(t *testing.T) {
	entered := make(chan struct{}, 2)
	proceed := make(chan struct{})
	var first sync.Once
	gate := func() {
		entered <- struct{}{}
		first.Do(func() { <-proceed })
	}

	svc, audit, post := newAuditedService(t, lock.NewLocal(5*time.Second), gate)
	ctx := context.Background()

	var wg conc.WaitGroup
	wg.Go(func() {
		_, err := svc.CreateComment(ctx, CreateCommentInput{User: ana, PostID: post.ID, Content: "first"})
		assert.NoError(t, err)
	})
	<-entered

	wg.Go(func() {
		_, err := svc.CreateComment(ctx, CreateCommentInput{User: bob, PostID: post.ID, Content: "second"})
		assert.NoError(t, err)
	})

	// The first writer is parked inside its critical section holding the only
	// connection. The second needs no connection to reach Acquire, so it must
	// be waiting on the post lock.
	time.Sleep(100 * time.Millisecond)
	audit.mu.Lock()
	assert.Equal(t, 1, audit.acquired[lock.PostKey(post.ID)])
	assert.Equal(t, 1, audit.holders[lock.PostKey(post.ID)])
	audit.mu.Unlock()

	close(proceed)
	wg.Wait()

	audit.mu.Lock()
	defer audit.mu.Unlock()
	assert.Equal(t, 2, audit.acquired[lock.PostKey(post.ID)])
	assert.Equal(t, 1, audit.maxHolders)
	assert.Empty(t, audit.violations)
}

func TestCommentTree_UnlockedWritesAreReported(t *testing.T) {
	svc, audit, post := newAuditedService(t, lock.NewLocal(time.Second), nil)

	_, err := svc.commentRepo.ShiftRight(context.Background(), post.ID, 1, 2)
	require.NoError(t, err)

	audit.mu.Lock()
	defer audit.mu.Unlock()
	require.Len(t, audit.violations, 1)
	assert.Contains(t, audit.violations[0], "ShiftRight")
}
