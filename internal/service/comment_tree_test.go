package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"chatapp/internal/lock"
	"chatapp/internal/models"
	"chatapp/internal/nestedset"
	"chatapp/internal/notifications"
	"chatapp/internal/repository"
	"chatapp/internal/testutil"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	owner = models.Identity{UserID: 1, DisplayName: "owner"}
	bob   = models.Identity{UserID: 3, DisplayName: "bob"}
	admin = models.Identity{UserID: 4, DisplayName: "mod", IsAdmin: true}
)

type treeFixture struct {
	db     *gorm.DB
	svc    *CommentService
	sink   *testutil.NotificationRecorder
	locker *lock.Local
	post   *models.Post
}

func newTreeFixture(t *testing.T) *treeFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	post := &models.Post{UserID: owner.UserID, OwnerName: owner.DisplayName, Title: "thread"}
	require.NoError(t, db.Create(post).Error)

	sink := &testutil.NotificationRecorder{}
	locker := lock.NewLocal(2 * time.Second)
	svc := NewCommentService(CommentServiceDeps{
		DB:       db,
		Comments: repository.NewCommentRepository(db),
		Posts:    repository.NewPostRepository(db),
		Locker:   locker,
		Sink:     sink,
		Events:   sink,
	})
	return &treeFixture{db: db, svc: svc, sink: sink, locker: locker, post: post}
}

func (f *treeFixture) create(t *testing.T, user models.Identity, parent *models.Comment, content string) *models.Comment {
	t.Helper()
	in := CreateCommentInput{User: user, PostID: f.post.ID, Content: content}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	c, err := f.svc.CreateComment(context.Background(), in)
	require.NoError(t, err)
	return c
}

func (f *treeFixture) bounds(t *testing.T, c *models.Comment) nestedset.Interval {
	t.Helper()
	var fresh models.Comment
	require.NoError(t, f.db.First(&fresh, "id = ?", c.ID).Error)
	return nestedset.Interval{Left: fresh.Left, Right: fresh.Right}
}

func (f *treeFixture) commentsCount(t *testing.T) int {
	t.Helper()
	var post models.Post
	require.NoError(t, f.db.First(&post, f.post.ID).Error)
	return post.CommentsCount
}

func (f *treeFixture) verify(t *testing.T) *TreeReport {
	t.Helper()
	report, err := f.svc.VerifyTree(context.Background(), admin, f.post.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
	assert.True(t, report.Contiguous)
	return report
}

func iv(l, r int) nestedset.Interval { return nestedset.Interval{Left: l, Right: r} }

func TestCommentTree_Scenario(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	a := f.create(t, ana, nil, "A")
	b := f.create(t, ana, nil, "B")
	assert.Equal(t, iv(1, 2), f.bounds(t, a))
	assert.Equal(t, iv(3, 4), f.bounds(t, b))

	c := f.create(t, bob, a, "C")
	assert.Equal(t, iv(1, 4), f.bounds(t, a))
	assert.Equal(t, iv(2, 3), f.bounds(t, c))
	assert.Equal(t, iv(5, 6), f.bounds(t, b))
	assert.Equal(t, 3, f.commentsCount(t))

	res, err := f.svc.DeleteComment(ctx, DeleteCommentInput{User: bob, CommentID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Removed)
	assert.Equal(t, c.ID, res.Comment.ID)

	assert.Equal(t, iv(1, 2), f.bounds(t, a))
	assert.Equal(t, iv(3, 4), f.bounds(t, b))
	assert.Equal(t, 2, f.commentsCount(t))
	f.verify(t)
}

func TestCommentTree_ReplyWidensAncestorsOnly(t *testing.T) {
	f := newTreeFixture(t)

	a := f.create(t, ana, nil, "A")
	a1 := f.create(t, ana, a, "A1")
	a11 := f.create(t, ana, a1, "A11")
	b := f.create(t, ana, nil, "B")

	before := map[string]nestedset.Interval{}
	for _, c := range []*models.Comment{a, a1, a11, b} {
		before[c.ID] = f.bounds(t, c)
	}

	r := f.create(t, bob, a11, "deep reply")

	parent := f.bounds(t, a11)
	assert.True(t, parent.Encloses(f.bounds(t, r)))
	for _, c := range []*models.Comment{a, a1, a11} {
		assert.Equal(t, before[c.ID].Right+2, f.bounds(t, c).Right, c.Content)
		assert.Equal(t, before[c.ID].Left, f.bounds(t, c).Left, c.Content)
	}
	assert.Equal(t, iv(before[b.ID].Left+2, before[b.ID].Right+2), f.bounds(t, b))

	// A new root lands after everything without moving anything.
	snapshot := map[string]nestedset.Interval{}
	for _, c := range []*models.Comment{a, a1, a11, b, r} {
		snapshot[c.ID] = f.bounds(t, c)
	}
	root := f.create(t, bob, nil, "late root")
	for id, want := range snapshot {
		assert.Equal(t, want, f.bounds(t, &models.Comment{ID: id}))
	}
	assert.Less(t, f.bounds(t, b).Right, f.bounds(t, root).Left)
	f.verify(t)
}

func TestCommentTree_DeleteSubtree(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	a := f.create(t, ana, nil, "A")
	a1 := f.create(t, bob, a, "A1")
	f.create(t, ana, a1, "A11")
	f.create(t, bob, a1, "A12")
	a2 := f.create(t, ana, a, "A2")
	b := f.create(t, ana, nil, "B")
	_, err := f.svc.ToggleLike(ctx, ToggleLikeInput{User: ana, CommentID: a1.ID})
	require.NoError(t, err)
	require.Equal(t, 6, f.commentsCount(t))

	// Post owner may prune any thread.
	res, err := f.svc.DeleteComment(ctx, DeleteCommentInput{User: owner, CommentID: a1.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Removed)
	assert.Equal(t, 3, f.commentsCount(t))

	assert.Equal(t, iv(1, 4), f.bounds(t, a))
	assert.Equal(t, iv(2, 3), f.bounds(t, a2))
	assert.Equal(t, iv(5, 6), f.bounds(t, b))

	var likes int64
	require.NoError(t, f.db.Model(&models.CommentLike{}).Count(&likes).Error)
	assert.Zero(t, likes)

	_, err = f.svc.DeleteComment(ctx, DeleteCommentInput{User: owner, CommentID: a1.ID})
	assertCode(t, err, models.CodeNotFound)
	assert.Equal(t, 3, f.verify(t).Nodes)
}

func TestCommentTree_CreateChecks(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateComment(ctx, CreateCommentInput{User: ana, PostID: 999, Content: "hi"})
	assertCode(t, err, models.CodeNotFound)

	missing := "00000000-0000-0000-0000-000000000000"
	_, err = f.svc.CreateComment(ctx, CreateCommentInput{User: ana, PostID: f.post.ID, ParentID: &missing, Content: "hi"})
	assertCode(t, err, models.CodeNotFound)

	other := &models.Post{UserID: 2, Title: "other"}
	require.NoError(t, f.db.Create(other).Error)
	foreign, err := f.svc.CreateComment(ctx, CreateCommentInput{User: ana, PostID: other.ID, Content: "elsewhere"})
	require.NoError(t, err)
	_, err = f.svc.CreateComment(ctx, CreateCommentInput{User: ana, PostID: f.post.ID, ParentID: &foreign.ID, Content: "hi"})
	assertCode(t, err, models.CodeNotFound)

	c, err := f.svc.CreateComment(ctx, CreateCommentInput{User: ana, PostID: f.post.ID, Content: " <i>hello</i> "})
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Content)
	assert.Equal(t, models.CommentTypeText, c.Type)
	assert.Equal(t, "ana", c.AuthorName)
	assert.Equal(t, 1, f.commentsCount(t))
}

func TestCommentTree_UpdateKeepsShape(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	a := f.create(t, ana, nil, "A")
	f.create(t, bob, a, "reply")
	before := f.bounds(t, a)

	updated, err := f.svc.UpdateComment(ctx, UpdateCommentInput{User: ana, CommentID: a.ID, Content: "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)
	assert.Equal(t, before, f.bounds(t, a))

	_, err = f.svc.UpdateComment(ctx, UpdateCommentInput{User: bob, CommentID: a.ID, Content: "hijack"})
	assertCode(t, err, models.CodeUnauthorized)

	_, err = f.svc.UpdateComment(ctx, UpdateCommentInput{User: ana, CommentID: a.ID, Content: "   "})
	assertCode(t, err, models.CodeValidation)

	events := f.sink.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventCommentUpdated, events[len(events)-1].Type)
}

func TestCommentTree_Notifications(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	// Owner commenting on their own post notifies nobody.
	own := f.create(t, owner, nil, "first!")
	assert.Empty(t, f.sink.Notifications())
	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventCommentCreated, events[0].Type)
	assert.Equal(t, f.post.ID, events[0].PostID)

	a := f.create(t, ana, nil, "A")
	notes := f.sink.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notifications.TypeComment, notes[0].Kind())
	assert.Equal(t, owner.UserID, notes[0].Recipient())
	assert.Equal(t, fmt.Sprintf("%d/%s", f.post.ID, a.ID), notes[0].Link())
	f.sink.Reset()

	reply := f.create(t, bob, a, "reply")
	notes = f.sink.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notifications.TypeCommentReply, notes[0].Kind())
	assert.Equal(t, ana.UserID, notes[0].Recipient())
	assert.Equal(t, fmt.Sprintf("%d/%s/%s", f.post.ID, a.ID, reply.ID), notes[0].Link())
	assert.Equal(t, "**bob** reply to your comment about **owner's post**", notes[0].Content())
	f.sink.Reset()

	// Replying to yourself is silent.
	f.create(t, bob, reply, "self reply")
	assert.Empty(t, f.sink.Notifications())

	_, err := f.svc.ToggleLike(ctx, ToggleLikeInput{User: ana, CommentID: reply.ID})
	require.NoError(t, err)
	notes = f.sink.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notifications.TypeCommentEmoji, notes[0].Kind())
	assert.Equal(t, bob.UserID, notes[0].Recipient())
	f.sink.Reset()

	_, err = f.svc.ToggleLike(ctx, ToggleLikeInput{User: owner, CommentID: own.ID})
	require.NoError(t, err)
	assert.Empty(t, f.sink.Notifications(), "liking your own comment is silent")
}

func TestCommentTree_SinkFailureDoesNotFailMutation(t *testing.T) {
	f := newTreeFixture(t)
	f.sink.Err = errors.New("redis down")

	c, err := f.svc.CreateComment(context.Background(), CreateCommentInput{User: ana, PostID: f.post.ID, Content: "still saved"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, f.commentsCount(t))
}

func TestCommentTree_ToggleLike(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()
	a := f.create(t, ana, nil, "A")

	res, err := f.svc.ToggleLike(ctx, ToggleLikeInput{User: bob, CommentID: a.ID})
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 1, res.LikeCount)

	res, err = f.svc.ToggleLike(ctx, ToggleLikeInput{User: owner, CommentID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.LikeCount)

	res, err = f.svc.ToggleLike(ctx, ToggleLikeInput{User: bob, CommentID: a.ID})
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Equal(t, 1, res.LikeCount)

	_, err = f.svc.ToggleLike(ctx, ToggleLikeInput{User: bob, CommentID: "nope"})
	assertCode(t, err, models.CodeNotFound)
	_, err = f.svc.ToggleLike(ctx, ToggleLikeInput{CommentID: a.ID})
	assertCode(t, err, models.CodeUnauthorized)
}

func TestCommentTree_ListComments(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	var roots []*models.Comment
	for i := 0; i < 15; i++ {
		roots = append(roots, f.create(t, ana, nil, fmt.Sprintf("root %d", i)))
	}
	for i := 0; i < 3; i++ {
		f.create(t, bob, roots[0], fmt.Sprintf("reply %d", i))
	}
	f.create(t, bob, roots[1], "other thread")
	_, err := f.svc.ToggleLike(ctx, ToggleLikeInput{User: bob, CommentID: roots[2].ID})
	require.NoError(t, err)

	oldest := models.Page{Page: 1, Limit: 10, SortBy: "asc"}

	t.Run("peek ahead past the page", func(t *testing.T) {
		page, err := f.svc.ListComments(ctx, ListCommentsInput{User: bob, PostID: f.post.ID, Page: oldest})
		require.NoError(t, err)
		assert.Len(t, page.Comments, 11)
		assert.Equal(t, 5, page.RemainComment)
		assert.Equal(t, roots[0].ID, page.Comments[0].ID)
		assert.True(t, page.Comments[2].Liked)
		assert.False(t, page.Comments[0].Liked)
	})

	t.Run("last page", func(t *testing.T) {
		page, err := f.svc.ListComments(ctx, ListCommentsInput{PostID: f.post.ID, Page: models.Page{Page: 2, Limit: 10, SortBy: "asc"}})
		require.NoError(t, err)
		assert.Len(t, page.Comments, 5)
		assert.Zero(t, page.RemainComment)
	})

	t.Run("defaults", func(t *testing.T) {
		page, err := f.svc.ListComments(ctx, ListCommentsInput{PostID: f.post.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 10, page.Limit)
		assert.Len(t, page.Comments, 11)
	})

	t.Run("direct replies of a parent", func(t *testing.T) {
		page, err := f.svc.ListComments(ctx, ListCommentsInput{PostID: f.post.ID, ParentID: &roots[0].ID, Page: oldest})
		require.NoError(t, err)
		require.NotNil(t, page.ParentComment)
		assert.Equal(t, roots[0].ID, page.ParentComment.ID)
		require.Len(t, page.Comments, 3)
		assert.Equal(t, "reply 0", page.Comments[0].Content)
		assert.Zero(t, page.RemainComment)
	})

	t.Run("bad paging", func(t *testing.T) {
		_, err := f.svc.ListComments(ctx, ListCommentsInput{PostID: f.post.ID, Page: models.Page{Page: 1, Limit: 101}})
		assertCode(t, err, models.CodeValidation)
		_, err = f.svc.ListComments(ctx, ListCommentsInput{PostID: f.post.ID, Page: models.Page{Page: -1, Limit: 5}})
		assertCode(t, err, models.CodeValidation)
		_, err = f.svc.ListComments(ctx, ListCommentsInput{PostID: f.post.ID, Page: models.Page{Page: 1, Limit: 0}})
		assertCode(t, err, models.CodeValidation)
		_, err = f.svc.ListComments(ctx, ListCommentsInput{PostID: f.post.ID, Page: models.Page{Page: 0, Limit: 5}})
		assertCode(t, err, models.CodeValidation)
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := f.svc.ListComments(ctx, ListCommentsInput{PostID: 4242})
		assertCode(t, err, models.CodeNotFound)
	})
}

func TestCommentTree_GetThread(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	a := f.create(t, ana, nil, "A")
	a1 := f.create(t, bob, a, "A1")
	f.create(t, ana, a1, "A11")
	f.create(t, bob, a, "A2")
	f.create(t, ana, nil, "B")

	thread, err := f.svc.GetThread(ctx, ana, a.ID)
	require.NoError(t, err)

	var got []string
	var depths []int
	for _, c := range thread {
		got = append(got, c.Content)
		depths = append(depths, c.Depth)
	}
	assert.Equal(t, []string{"A", "A1", "A11", "A2"}, got)
	assert.Equal(t, []int{0, 1, 2, 1}, depths)

	_, err = f.svc.GetThread(ctx, ana, "missing")
	assertCode(t, err, models.CodeNotFound)
}

func TestCommentTree_VerifyTreeRequiresAdmin(t *testing.T) {
	f := newTreeFixture(t)

	_, err := f.svc.VerifyTree(context.Background(), ana, f.post.ID)
	assertCode(t, err, models.CodeUnauthorized)

	// Corrupt the forest behind the service's back.
	a := f.create(t, ana, nil, "A")
	require.NoError(t, f.db.Model(&models.Comment{}).Where("id = ?", a.ID).UpdateColumn("rgt", 7).Error)

	report, err := f.svc.VerifyTree(context.Background(), admin, f.post.ID)
	require.NoError(t, err)
	assert.False(t, report.Contiguous)
}

func TestCommentTree_BusyWhileLocked(t *testing.T) {
	f := newTreeFixture(t)
	f.svc.locker = lock.NewLocal(20 * time.Millisecond)

	release, err := f.svc.locker.Acquire(context.Background(), lock.PostKey(f.post.ID))
	require.NoError(t, err)
	defer release()

	_, err = f.svc.CreateComment(context.Background(), CreateCommentInput{User: ana, PostID: f.post.ID, Content: "blocked"})
	assertCode(t, err, models.CodeBusy)
	assert.Zero(t, f.commentsCount(t))
}

func TestCommentTree_ConcurrentMutations(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	a := f.create(t, ana, nil, "A")
	f.create(t, ana, nil, "B")

	var mu sync.Mutex
	created := []*models.Comment{a}

	var wg conc.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Go(func() {
			user := models.Identity{UserID: uint(10 + i), DisplayName: fmt.Sprintf("u%d", i)}
			c, err := f.svc.CreateComment(ctx, CreateCommentInput{User: user, PostID: f.post.ID, ParentID: &a.ID, Content: "reply"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			created = append(created, c)
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, 18, f.commentsCount(t))
	assert.Equal(t, iv(1, 34), f.bounds(t, a))
	report := f.verify(t)
	assert.Equal(t, 18, report.Nodes)

	// Interleave replies and deletes across the forest.
	rng := rand.New(rand.NewSource(7))
	targets := make([]*models.Comment, 0, 8)
	for i := 0; i < 8; i++ {
		targets = append(targets, created[1+rng.Intn(len(created)-1)])
	}
	wg = conc.WaitGroup{}
	for i, target := range targets {
		wg.Go(func() {
			if i%2 == 0 {
				_, err := f.svc.CreateComment(ctx, CreateCommentInput{User: bob, PostID: f.post.ID, ParentID: &target.ID, Content: "nested"})
				if err != nil {
					assert.True(t, models.IsCode(err, models.CodeNotFound), "unexpected error: %v", err)
				}
				return
			}
			_, err := f.svc.DeleteComment(ctx, DeleteCommentInput{User: owner, CommentID: target.ID})
			if err != nil {
				assert.True(t, models.IsCode(err, models.CodeNotFound), "unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	report = f.verify(t)
	assert.Equal(t, report.Nodes, f.commentsCount(t))
}
