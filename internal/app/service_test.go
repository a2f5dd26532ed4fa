package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agora/realtime/internal/broadcast"
	"agora/realtime/internal/config"
	"agora/realtime/internal/search"
	"agora/realtime/internal/store"
)

type fakeStore struct {
	createReplyFn         func(context.Context, store.ReplyInput) (store.Post, error)
	getPostFieldsFn       func(context.Context, int64, ...string) (store.Post, error)
	editPostFn            func(context.Context, int64, int64, string, string, string) (store.EditResult, error)
	deleteOrRestoreFn     func(context.Context, store.DeleteVerb, int64, int64) error
	getPrivilegesFn       func(context.Context, int64, int64) (store.Privileges, error)
	applyVoteVerbFn       func(context.Context, store.VoteVerb, int64, string, int64, string) error
	favouritersByPostsFn  func(context.Context, []int64) ([][]int64, error)
	usernamesByUIDsFn     func(context.Context, []int64) ([]string, error)
	getUsernameFn         func(context.Context, int64) (string, error)
	emailsByUIDsFn        func(context.Context, []int64) ([]string, error)
	getTopicSlugFn        func(context.Context, int64) (string, error)
	getPostIndexFn        func(context.Context, int64) (int64, error)
	getPostPageFn         func(context.Context, int64, int64) (store.PagePosition, error)
	getFavouritesPageFn   func(context.Context, int64, int64, int64) ([]store.Post, error)
	getAuthoredPostsFn    func(context.Context, int64, int64, int64, int64) ([]store.Post, error)
	getRecentPostsPageFn  func(context.Context, int64, int64, int64) ([]store.Post, error)
	postsByPIDsFn         func(context.Context, []int64) ([]store.Post, error)
	createNotificationFn  func(context.Context, store.Notification) (string, error)
	pushNotificationFn    func(context.Context, string, []int64) error
	getGroupByNameFn      func(context.Context, string) (store.Group, error)
	topicPostCountsFn     func(context.Context) (int64, int64, error)
}

func (f *fakeStore) CreateReply(ctx context.Context, in store.ReplyInput) (store.Post, error) {
	if f.createReplyFn != nil {
		return f.createReplyFn(ctx, in)
	}
	return store.Post{PID: 1, TID: in.TID, UID: in.UID, Content: in.Content}, nil
}
func (f *fakeStore) GetPostFields(ctx context.Context, pid int64, fields ...string) (store.Post, error) {
	if f.getPostFieldsFn != nil {
		return f.getPostFieldsFn(ctx, pid, fields...)
	}
	return store.Post{PID: pid, TID: 1}, nil
}
func (f *fakeStore) EditPost(ctx context.Context, uid, pid int64, title, content, thumbnail string) (store.EditResult, error) {
	if f.editPostFn != nil {
		return f.editPostFn(ctx, uid, pid, title, content, thumbnail)
	}
	return store.EditResult{Topic: store.EditedTopic{TID: 1, Title: title}, Content: content}, nil
}
func (f *fakeStore) DeleteOrRestorePost(ctx context.Context, verb store.DeleteVerb, uid, pid int64) error {
	if f.deleteOrRestoreFn != nil {
		return f.deleteOrRestoreFn(ctx, verb, uid, pid)
	}
	return nil
}
func (f *fakeStore) GetPrivileges(ctx context.Context, pid, uid int64) (store.Privileges, error) {
	if f.getPrivilegesFn != nil {
		return f.getPrivilegesFn(ctx, pid, uid)
	}
	return store.Privileges{Read: true}, nil
}
func (f *fakeStore) ApplyVoteVerb(ctx context.Context, verb store.VoteVerb, pid int64, roomID string, uid int64, connID string) error {
	if f.applyVoteVerbFn != nil {
		return f.applyVoteVerbFn(ctx, verb, pid, roomID, uid, connID)
	}
	return nil
}
func (f *fakeStore) FavouritersByPosts(ctx context.Context, pids []int64) ([][]int64, error) {
	if f.favouritersByPostsFn != nil {
		return f.favouritersByPostsFn(ctx, pids)
	}
	return nil, nil
}
func (f *fakeStore) UsernamesByUIDs(ctx context.Context, uids []int64) ([]string, error) {
	if f.usernamesByUIDsFn != nil {
		return f.usernamesByUIDsFn(ctx, uids)
	}
	return make([]string, len(uids)), nil
}
func (f *fakeStore) GetUsername(ctx context.Context, uid int64) (string, error) {
	if f.getUsernameFn != nil {
		return f.getUsernameFn(ctx, uid)
	}
	return "user", nil
}
func (f *fakeStore) EmailsByUIDs(ctx context.Context, uids []int64) ([]string, error) {
	if f.emailsByUIDsFn != nil {
		return f.emailsByUIDsFn(ctx, uids)
	}
	return nil, nil
}
func (f *fakeStore) GetTopicSlug(ctx context.Context, tid int64) (string, error) {
	if f.getTopicSlugFn != nil {
		return f.getTopicSlugFn(ctx, tid)
	}
	return "topic-slug", nil
}
func (f *fakeStore) GetPostIndex(ctx context.Context, pid int64) (int64, error) {
	if f.getPostIndexFn != nil {
		return f.getPostIndexFn(ctx, pid)
	}
	return 0, nil
}
func (f *fakeStore) GetPostPage(ctx context.Context, pid, uid int64) (store.PagePosition, error) {
	if f.getPostPageFn != nil {
		return f.getPostPageFn(ctx, pid, uid)
	}
	return store.PagePosition{PID: pid, Page: 1, PostsPerPage: 20}, nil
}
func (f *fakeStore) GetFavouritesPage(ctx context.Context, uid, start, end int64) ([]store.Post, error) {
	if f.getFavouritesPageFn != nil {
		return f.getFavouritesPageFn(ctx, uid, start, end)
	}
	return nil, nil
}
func (f *fakeStore) GetAuthoredPostsPage(ctx context.Context, callerUID, targetUID, start, end int64) ([]store.Post, error) {
	if f.getAuthoredPostsFn != nil {
		return f.getAuthoredPostsFn(ctx, callerUID, targetUID, start, end)
	}
	return nil, nil
}
func (f *fakeStore) GetRecentPostsPage(ctx context.Context, uid, start, end int64) ([]store.Post, error) {
	if f.getRecentPostsPageFn != nil {
		return f.getRecentPostsPageFn(ctx, uid, start, end)
	}
	return nil, nil
}
func (f *fakeStore) PostsByPIDs(ctx context.Context, pids []int64) ([]store.Post, error) {
	if f.postsByPIDsFn != nil {
		return f.postsByPIDsFn(ctx, pids)
	}
	return nil, nil
}
func (f *fakeStore) CreateNotification(ctx context.Context, n store.Notification) (string, error) {
	if f.createNotificationFn != nil {
		return f.createNotificationFn(ctx, n)
	}
	return "nid-1", nil
}
func (f *fakeStore) PushNotification(ctx context.Context, nid string, uids []int64) error {
	if f.pushNotificationFn != nil {
		return f.pushNotificationFn(ctx, nid, uids)
	}
	return nil
}
func (f *fakeStore) GetGroupByName(ctx context.Context, name string) (store.Group, error) {
	if f.getGroupByNameFn != nil {
		return f.getGroupByNameFn(ctx, name)
	}
	return store.Group{Name: name, Members: []int64{1}}, nil
}
func (f *fakeStore) TopicPostCounts(ctx context.Context) (int64, int64, error) {
	if f.topicPostCountsFn != nil {
		return f.topicPostCountsFn(ctx)
	}
	return 3, 14, nil
}

type sentEvent struct {
	target  string
	event   string
	payload any
}

type fakeBroadcaster struct {
	conn   []sentEvent
	room   []sentEvent
	global []sentEvent
}

func (f *fakeBroadcaster) ToConnection(connID, event string, payload any) error {
	f.conn = append(f.conn, sentEvent{target: connID, event: event, payload: payload})
	return nil
}
func (f *fakeBroadcaster) ToRoom(_ context.Context, room, event string, payload any) error {
	f.room = append(f.room, sentEvent{target: room, event: event, payload: payload})
	return nil
}
func (f *fakeBroadcaster) Global(event string, payload any) {
	f.global = append(f.global, sentEvent{event: event, payload: payload})
}

type fakeAlerts struct {
	contentShort []string
	titleShort   []string
	tooMany      []string
	sent         []broadcast.Alert
}

func (f *fakeAlerts) ContentTooShort(connID string) { f.contentShort = append(f.contentShort, connID) }
func (f *fakeAlerts) TitleTooShort(connID string)   { f.titleShort = append(f.titleShort, connID) }
func (f *fakeAlerts) TooManyPosts(connID string)    { f.tooMany = append(f.tooMany, connID) }
func (f *fakeAlerts) Alert(connID string, alert broadcast.Alert) {
	f.sent = append(f.sent, alert)
}

type fakeMailer struct {
	configured bool
	sent       [][]string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }
func (f *fakeMailer) SendFlagNotice(to []string, flaggedBy, postPath string) error {
	f.sent = append(f.sent, to)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		MinimumTitleLength: 3,
		MinimumPostLength:  8,
		RelativePath:       "/forum",
	}
}

func newTestService(fs *fakeStore, fb *fakeBroadcaster, fa *fakeAlerts) *Service {
	return &Service{cfg: testConfig(), store: fs, bcast: fb, alerts: fa}
}

func member() Caller { return Caller{ConnID: "conn-1", UID: 7} }
func guest() Caller  { return Caller{ConnID: "conn-1"} }

func commandCode(t *testing.T, err error) string {
	t.Helper()
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	return cmdErr.Code
}

func TestReplyRejectsGuestsWithoutTouchingStore(t *testing.T) {
	fs := &fakeStore{
		createReplyFn: func(context.Context, store.ReplyInput) (store.Post, error) {
			t.Fatal("store must not be called for a rejected guest")
			return store.Post{}, nil
		},
	}
	fb := &fakeBroadcaster{}
	fa := &fakeAlerts{}
	svc := newTestService(fs, fb, fa)

	_, err := svc.Reply(context.Background(), guest(), ReplyPayload{TID: 1, Content: "hello there"})
	if code := commandCode(t, err); code != "not-logged-in" {
		t.Fatalf("expected not-logged-in, got %s", code)
	}
	if len(fa.sent) != 1 || fa.sent[0].Type != "danger" {
		t.Fatalf("expected one danger alert, got %+v", fa.sent)
	}
	if len(fb.global) != 0 {
		t.Fatalf("expected no broadcast on failure, got %+v", fb.global)
	}
}

func TestReplyAllowsGuestsWhenConfigured(t *testing.T) {
	fs := &fakeStore{}
	fb := &fakeBroadcaster{}
	svc := newTestService(fs, fb, &fakeAlerts{})
	svc.cfg.AllowGuestPosting = true

	post, err := svc.Reply(context.Background(), guest(), ReplyPayload{TID: 1, Content: "hello there"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if post.UID != 0 {
		t.Fatalf("expected guest uid 0, got %d", post.UID)
	}
}

func TestReplyRejectsIncompletePayload(t *testing.T) {
	fs := &fakeStore{
		createReplyFn: func(context.Context, store.ReplyInput) (store.Post, error) {
			t.Fatal("store must not be called for invalid payloads")
			return store.Post{}, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	_, err := svc.Reply(context.Background(), member(), ReplyPayload{TID: 1})
	if code := commandCode(t, err); code != "invalid-data" {
		t.Fatalf("expected invalid-data, got %s", code)
	}
	_, err = svc.Reply(context.Background(), member(), ReplyPayload{Content: "hello there"})
	if code := commandCode(t, err); code != "invalid-data" {
		t.Fatalf("expected invalid-data, got %s", code)
	}
}

func TestReplyBroadcastsOnlyAfterStoreSucceeds(t *testing.T) {
	created := false
	fs := &fakeStore{
		createReplyFn: func(_ context.Context, in store.ReplyInput) (store.Post, error) {
			created = true
			return store.Post{PID: 42, TID: in.TID, UID: in.UID, Content: in.Content}, nil
		},
	}
	fb := &fakeBroadcaster{}
	fa := &fakeAlerts{}
	svc := newTestService(fs, fb, fa)

	post, err := svc.Reply(context.Background(), member(), ReplyPayload{TID: 9, Content: "a long enough reply"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if !created {
		t.Fatal("expected store mutation")
	}
	if post.PID != 42 {
		t.Fatalf("expected acked post 42, got %d", post.PID)
	}
	if len(fb.global) != 2 {
		t.Fatalf("expected new_post plus stats broadcasts, got %+v", fb.global)
	}
	if fb.global[0].event != "event:new_post" {
		t.Fatalf("expected event:new_post first, got %s", fb.global[0].event)
	}
	posts := fb.global[0].payload.(map[string]any)["posts"].([]store.Post)
	if len(posts) != 1 || posts[0].PID != 42 {
		t.Fatalf("expected broadcast to carry the created post, got %+v", posts)
	}
	if fb.global[1].event != "event:topic_post_stats" {
		t.Fatalf("expected stats refresh, got %s", fb.global[1].event)
	}
	if len(fa.sent) != 1 || fa.sent[0].Type != "success" {
		t.Fatalf("expected success alert, got %+v", fa.sent)
	}
}

func TestReplyStoreFailureAlertsAndSkipsBroadcast(t *testing.T) {
	fs := &fakeStore{
		createReplyFn: func(context.Context, store.ReplyInput) (store.Post, error) {
			return store.Post{}, store.ErrContentTooShort
		},
	}
	fb := &fakeBroadcaster{}
	fa := &fakeAlerts{}
	svc := newTestService(fs, fb, fa)

	_, err := svc.Reply(context.Background(), member(), ReplyPayload{TID: 1, Content: "hi"})
	if code := commandCode(t, err); code != "content-too-short" {
		t.Fatalf("expected content-too-short, got %s", code)
	}
	if len(fa.contentShort) != 1 {
		t.Fatalf("expected one content-too-short alert, got %d", len(fa.contentShort))
	}
	if len(fb.global) != 0 {
		t.Fatalf("expected no broadcast after store failure, got %+v", fb.global)
	}
}

func TestVoteDropsIncompletePayloadSilently(t *testing.T) {
	fs := &fakeStore{
		applyVoteVerbFn: func(context.Context, store.VoteVerb, int64, string, int64, string) error {
			t.Fatal("store must not be called without pid and room_id")
			return nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	if err := svc.Upvote(context.Background(), member(), VotePayload{PID: 5}); err != nil {
		t.Fatalf("Upvote() error = %v", err)
	}
	if err := svc.Favourite(context.Background(), member(), VotePayload{RoomID: "topic_1"}); err != nil {
		t.Fatalf("Favourite() error = %v", err)
	}
}

func TestVoteVerbsRouteToStore(t *testing.T) {
	var got []store.VoteVerb
	fs := &fakeStore{
		applyVoteVerbFn: func(_ context.Context, verb store.VoteVerb, pid int64, roomID string, uid int64, connID string) error {
			if pid != 5 || roomID != "topic_1" || uid != 7 || connID != "conn-1" {
				t.Fatalf("unexpected vote args: pid=%d room=%s uid=%d conn=%s", pid, roomID, uid, connID)
			}
			got = append(got, verb)
			return nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	p := VotePayload{PID: 5, RoomID: "topic_1"}
	ctx := context.Background()
	_ = svc.Upvote(ctx, member(), p)
	_ = svc.Downvote(ctx, member(), p)
	_ = svc.Unvote(ctx, member(), p)
	_ = svc.Favourite(ctx, member(), p)
	_ = svc.Unfavourite(ctx, member(), p)

	want := []store.VoteVerb{store.VerbUpvote, store.VerbDownvote, store.VerbUnvote, store.VerbFavourite, store.VerbUnfavourite}
	if len(got) != len(want) {
		t.Fatalf("expected %d store calls, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("verb %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestVoteStoreErrorIsSwallowed(t *testing.T) {
	fs := &fakeStore{
		applyVoteVerbFn: func(context.Context, store.VoteVerb, int64, string, int64, string) error {
			return errors.New("boom")
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	if err := svc.Upvote(context.Background(), member(), VotePayload{PID: 5, RoomID: "topic_1"}); err != nil {
		t.Fatalf("expected fire-and-forget to swallow errors, got %v", err)
	}
}

func TestGetRawPostHidesDeletedPosts(t *testing.T) {
	fs := &fakeStore{
		getPostFieldsFn: func(_ context.Context, pid int64, _ ...string) (store.Post, error) {
			return store.Post{PID: pid, Content: "gone", Deleted: true}, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	_, err := svc.GetRawPost(context.Background(), member(), 5)
	if code := commandCode(t, err); code != "not-found" {
		t.Fatalf("expected not-found for a deleted post, got %s", code)
	}
}

func TestGetRawPostReturnsContent(t *testing.T) {
	fs := &fakeStore{
		getPostFieldsFn: func(_ context.Context, pid int64, _ ...string) (store.Post, error) {
			return store.Post{PID: pid, Content: "raw markdown"}, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	content, err := svc.GetRawPost(context.Background(), guest(), 5)
	if err != nil {
		t.Fatalf("GetRawPost() error = %v", err)
	}
	if content != "raw markdown" {
		t.Fatalf("expected raw content, got %q", content)
	}
}

func TestEditRejectsGuests(t *testing.T) {
	fa := &fakeAlerts{}
	svc := newTestService(&fakeStore{}, &fakeBroadcaster{}, fa)

	err := svc.Edit(context.Background(), guest(), EditPayload{PID: 1, Title: "New title", Content: "long enough content"})
	if code := commandCode(t, err); code != "not-logged-in" {
		t.Fatalf("expected not-logged-in, got %s", code)
	}
	if len(fa.sent) != 1 || fa.sent[0].Type != "warning" {
		t.Fatalf("expected warning alert for guest edit, got %+v", fa.sent)
	}
}

func TestEditEnforcesMinimumLengths(t *testing.T) {
	fa := &fakeAlerts{}
	svc := newTestService(&fakeStore{}, &fakeBroadcaster{}, fa)

	err := svc.Edit(context.Background(), member(), EditPayload{PID: 1, Title: "ab", Content: "long enough content"})
	if code := commandCode(t, err); code != "title-too-short" {
		t.Fatalf("expected title-too-short, got %s", code)
	}
	if len(fa.titleShort) != 1 {
		t.Fatalf("expected title alert, got %d", len(fa.titleShort))
	}

	err = svc.Edit(context.Background(), member(), EditPayload{PID: 1, Title: "Fine", Content: "short"})
	if code := commandCode(t, err); code != "content-too-short" {
		t.Fatalf("expected content-too-short, got %s", code)
	}
	if len(fa.contentShort) != 1 {
		t.Fatalf("expected content alert, got %d", len(fa.contentShort))
	}
}

func TestEditBroadcastsToTopicRoom(t *testing.T) {
	fs := &fakeStore{
		editPostFn: func(_ context.Context, uid, pid int64, title, content, _ string) (store.EditResult, error) {
			if uid != 7 || pid != 3 {
				t.Fatalf("unexpected edit args uid=%d pid=%d", uid, pid)
			}
			return store.EditResult{
				Topic:   store.EditedTopic{TID: 12, Title: title, IsMainPost: true},
				Content: content,
			}, nil
		},
	}
	fb := &fakeBroadcaster{}
	svc := newTestService(fs, fb, &fakeAlerts{})

	err := svc.Edit(context.Background(), member(), EditPayload{PID: 3, Title: "Updated title", Content: "updated content here"})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(fb.room) != 1 {
		t.Fatalf("expected one room broadcast, got %+v", fb.room)
	}
	if fb.room[0].target != "topic_12" || fb.room[0].event != "event:post_edited" {
		t.Fatalf("unexpected broadcast %+v", fb.room[0])
	}
	payload := fb.room[0].payload.(map[string]any)
	if payload["isMainPost"] != true || payload["title"] != "Updated title" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestEditFailureDoesNotBroadcast(t *testing.T) {
	fs := &fakeStore{
		editPostFn: func(context.Context, int64, int64, string, string, string) (store.EditResult, error) {
			return store.EditResult{}, store.ErrNoPrivileges
		},
	}
	fb := &fakeBroadcaster{}
	svc := newTestService(fs, fb, &fakeAlerts{})

	err := svc.Edit(context.Background(), member(), EditPayload{PID: 3, Title: "Updated title", Content: "updated content here"})
	if code := commandCode(t, err); code != "no-privileges" {
		t.Fatalf("expected no-privileges, got %s", code)
	}
	if len(fb.room) != 0 {
		t.Fatalf("expected no broadcast, got %+v", fb.room)
	}
}

func TestDeleteResolvesRoomFromStorage(t *testing.T) {
	fs := &fakeStore{
		getPostFieldsFn: func(_ context.Context, pid int64, _ ...string) (store.Post, error) {
			return store.Post{PID: pid, TID: 42}, nil
		},
	}
	fb := &fakeBroadcaster{}
	svc := newTestService(fs, fb, &fakeAlerts{})

	// The payload lies about the topic; the stored tid wins.
	err := svc.Delete(context.Background(), member(), DeletePayload{PID: 5, TID: 99})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(fb.room) != 1 || fb.room[0].target != "topic_42" || fb.room[0].event != "event:post_deleted" {
		t.Fatalf("unexpected broadcast %+v", fb.room)
	}
	if len(fb.global) != 1 || fb.global[0].event != "event:topic_post_stats" {
		t.Fatalf("expected stats refresh, got %+v", fb.global)
	}
}

func TestRestoreBroadcastsRestoredEvent(t *testing.T) {
	fb := &fakeBroadcaster{}
	svc := newTestService(&fakeStore{}, fb, &fakeAlerts{})

	if err := svc.Restore(context.Background(), member(), DeletePayload{PID: 5}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(fb.room) != 1 || fb.room[0].event != "event:post_restored" {
		t.Fatalf("unexpected broadcast %+v", fb.room)
	}
}

func TestDeleteFailureDoesNotBroadcast(t *testing.T) {
	fs := &fakeStore{
		deleteOrRestoreFn: func(context.Context, store.DeleteVerb, int64, int64) error {
			return errors.New("post already deleted")
		},
	}
	fb := &fakeBroadcaster{}
	svc := newTestService(fs, fb, &fakeAlerts{})

	err := svc.Delete(context.Background(), member(), DeletePayload{PID: 5})
	if err == nil {
		t.Fatal("expected error from duplicate delete")
	}
	if len(fb.room) != 0 || len(fb.global) != 0 {
		t.Fatalf("expected no broadcasts after failed delete, got room=%+v global=%+v", fb.room, fb.global)
	}
}

func TestGetPrivilegesAnnotatesPid(t *testing.T) {
	fs := &fakeStore{
		getPrivilegesFn: func(_ context.Context, pid, uid int64) (store.Privileges, error) {
			return store.Privileges{Read: true, Editable: uid == 7}, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	privs, err := svc.GetPrivileges(context.Background(), member(), 33)
	if err != nil {
		t.Fatalf("GetPrivileges() error = %v", err)
	}
	if privs.PID != 33 || !privs.Editable {
		t.Fatalf("unexpected privileges %+v", privs)
	}
}

func TestGetFavouritedUsersSummaries(t *testing.T) {
	names := map[int64]string{1: "Ada", 2: "Brian", 3: "Grace", 4: "Dennis", 5: "Edsger", 6: "Frances", 7: "Guido"}
	newSvc := func(uids []int64) *Service {
		fs := &fakeStore{
			favouritersByPostsFn: func(_ context.Context, pids []int64) ([][]int64, error) {
				if len(pids) != 1 || pids[0] != 9 {
					t.Fatalf("expected lookup for pid 9, got %v", pids)
				}
				return [][]int64{uids}, nil
			},
			usernamesByUIDsFn: func(_ context.Context, uids []int64) ([]string, error) {
				out := make([]string, len(uids))
				for i, uid := range uids {
					out[i] = names[uid]
				}
				return out, nil
			},
		}
		return newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})
	}

	cases := []struct {
		name string
		uids []int64
		want string
	}{
		{"none", nil, ""},
		{"three", []int64{1, 2, 3}, "Ada, Brian, Grace"},
		{"six", []int64{1, 2, 3, 4, 5, 6}, "Ada, Brian, Grace, Dennis, Edsger and 1 other"},
		{"seven", []int64{1, 2, 3, 4, 5, 6, 7}, "Ada, Brian, Grace, Dennis, Edsger and 2 others"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newSvc(tc.uids).GetFavouritedUsers(context.Background(), member(), 9)
			if err != nil {
				t.Fatalf("GetFavouritedUsers() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestGetFavouritedUsersSkipsNameLookupWhenEmpty(t *testing.T) {
	fs := &fakeStore{
		usernamesByUIDsFn: func(context.Context, []int64) ([]string, error) {
			t.Fatal("no name lookup expected for an unfavourited post")
			return nil, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	got, err := svc.GetFavouritedUsers(context.Background(), member(), 9)
	if err != nil {
		t.Fatalf("GetFavouritedUsers() error = %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
}

func TestFlagPipeline(t *testing.T) {
	var pushed []int64
	fs := &fakeStore{
		getUsernameFn: func(_ context.Context, uid int64) (string, error) {
			return "Ada", nil
		},
		getPostFieldsFn: func(_ context.Context, pid int64, _ ...string) (store.Post, error) {
			return store.Post{PID: pid, TID: 4}, nil
		},
		getTopicSlugFn: func(_ context.Context, tid int64) (string, error) {
			if tid != 4 {
				t.Fatalf("expected slug lookup for tid 4, got %d", tid)
			}
			return "4/welcome", nil
		},
		getGroupByNameFn: func(_ context.Context, name string) (store.Group, error) {
			if name != "administrators" {
				t.Fatalf("expected administrators group, got %q", name)
			}
			return store.Group{Name: name, Members: []int64{1, 2}}, nil
		},
		createNotificationFn: func(_ context.Context, n store.Notification) (string, error) {
			if n.UniqueID != "post_flag:11" {
				t.Fatalf("expected collapsing unique id, got %q", n.UniqueID)
			}
			if !strings.Contains(n.Text, "Ada") {
				t.Fatalf("expected flagger name in text, got %q", n.Text)
			}
			if n.Path != "/forum/topic/4/welcome#11" {
				t.Fatalf("unexpected path %q", n.Path)
			}
			return "nid-9", nil
		},
		pushNotificationFn: func(_ context.Context, nid string, uids []int64) error {
			if nid != "nid-9" {
				t.Fatalf("expected nid-9, got %q", nid)
			}
			pushed = uids
			return nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	if err := svc.Flag(context.Background(), member(), 11); err != nil {
		t.Fatalf("Flag() error = %v", err)
	}
	if len(pushed) != 2 {
		t.Fatalf("expected push to both admins, got %v", pushed)
	}
}

func TestFlagRejectsGuests(t *testing.T) {
	fs := &fakeStore{
		getUsernameFn: func(context.Context, int64) (string, error) {
			t.Fatal("no store access expected for guests")
			return "", nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	err := svc.Flag(context.Background(), guest(), 11)
	if code := commandCode(t, err); code != "not-logged-in" {
		t.Fatalf("expected not-logged-in, got %s", code)
	}
}

func TestFlagStopsAtFirstFailure(t *testing.T) {
	fs := &fakeStore{
		getTopicSlugFn: func(context.Context, int64) (string, error) {
			return "", store.ErrNotFound
		},
		createNotificationFn: func(context.Context, store.Notification) (string, error) {
			t.Fatal("pipeline must stop before creating the notification")
			return "", nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	err := svc.Flag(context.Background(), member(), 11)
	if code := commandCode(t, err); code != "not-found" {
		t.Fatalf("expected not-found, got %s", code)
	}
}

func TestFlagEmailsAdminsWhenConfigured(t *testing.T) {
	fs := &fakeStore{
		emailsByUIDsFn: func(context.Context, []int64) ([]string, error) {
			return []string{"admin@example.com"}, nil
		},
	}
	mail := &fakeMailer{configured: true}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})
	svc.mail = mail

	if err := svc.Flag(context.Background(), member(), 11); err != nil {
		t.Fatalf("Flag() error = %v", err)
	}
	if len(mail.sent) != 1 || mail.sent[0][0] != "admin@example.com" {
		t.Fatalf("expected one notice to the admins, got %+v", mail.sent)
	}
}

func TestLoadMoreFavouritesPagesByTen(t *testing.T) {
	fs := &fakeStore{
		getFavouritesPageFn: func(_ context.Context, uid, start, end int64) ([]store.Post, error) {
			if uid != 7 || start != 10 || end != 19 {
				t.Fatalf("unexpected range uid=%d start=%d end=%d", uid, start, end)
			}
			return []store.Post{{PID: 100}}, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	after := int64(10)
	posts, err := svc.LoadMoreFavourites(context.Background(), member(), FavouritesCursorPayload{After: &after})
	if err != nil {
		t.Fatalf("LoadMoreFavourites() error = %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected one post, got %d", len(posts))
	}
}

func TestLoadMoreFavouritesRequiresCursor(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeBroadcaster{}, &fakeAlerts{})

	_, err := svc.LoadMoreFavourites(context.Background(), member(), FavouritesCursorPayload{})
	if code := commandCode(t, err); code != "invalid-data" {
		t.Fatalf("expected invalid-data, got %s", code)
	}
}

func TestLoadMoreUserPostsCarriesBothUids(t *testing.T) {
	fs := &fakeStore{
		getAuthoredPostsFn: func(_ context.Context, callerUID, targetUID, start, end int64) ([]store.Post, error) {
			if callerUID != 7 || targetUID != 3 || start != 0 || end != 9 {
				t.Fatalf("unexpected args caller=%d target=%d start=%d end=%d", callerUID, targetUID, start, end)
			}
			return nil, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	after := int64(0)
	if _, err := svc.LoadMoreUserPosts(context.Background(), member(), UserPostsPayload{UID: 3, After: &after}); err != nil {
		t.Fatalf("LoadMoreUserPosts() error = %v", err)
	}
}

func TestGetRecentPostsUsesCount(t *testing.T) {
	fs := &fakeStore{
		getRecentPostsPageFn: func(_ context.Context, uid, start, end int64) ([]store.Post, error) {
			if start != 0 || end != 4 {
				t.Fatalf("unexpected range start=%d end=%d", start, end)
			}
			return []store.Post{{PID: 1}, {PID: 2}}, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})

	posts, err := svc.GetRecentPosts(context.Background(), guest(), RecentPostsPayload{Count: 5})
	if err != nil {
		t.Fatalf("GetRecentPosts() error = %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected two posts, got %d", len(posts))
	}
}

type fakeSearcher struct {
	searchFn func(search.Query) ([]int64, error)
	indexed  []search.PostRecord
	deleted  []int64
}

func (f *fakeSearcher) Search(q search.Query) ([]int64, error) {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return nil, nil
}
func (f *fakeSearcher) IndexPost(p search.PostRecord) { f.indexed = append(f.indexed, p) }
func (f *fakeSearcher) DeletePost(pid int64)          { f.deleted = append(f.deleted, pid) }

func TestGetRecentPostsWithTermUsesSearch(t *testing.T) {
	fs := &fakeStore{
		postsByPIDsFn: func(_ context.Context, pids []int64) ([]store.Post, error) {
			if len(pids) != 2 || pids[0] != 8 || pids[1] != 3 {
				t.Fatalf("expected search order preserved, got %v", pids)
			}
			return []store.Post{{PID: 8}, {PID: 3}}, nil
		},
		getRecentPostsPageFn: func(context.Context, int64, int64, int64) ([]store.Post, error) {
			t.Fatal("term queries must not fall back to the recency scan")
			return nil, nil
		},
	}
	searcher := &fakeSearcher{
		searchFn: func(q search.Query) ([]int64, error) {
			if q.Term != "welcome" || q.Limit != 5 {
				t.Fatalf("unexpected query %+v", q)
			}
			return []int64{8, 3}, nil
		},
	}
	svc := newTestService(fs, &fakeBroadcaster{}, &fakeAlerts{})
	svc.search = searcher

	posts, err := svc.GetRecentPosts(context.Background(), guest(), RecentPostsPayload{Count: 5, Term: "welcome"})
	if err != nil {
		t.Fatalf("GetRecentPosts() error = %v", err)
	}
	if len(posts) != 2 || posts[0].PID != 8 {
		t.Fatalf("unexpected posts %+v", posts)
	}
}

func TestDeleteUpdatesSearchIndex(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := newTestService(&fakeStore{}, &fakeBroadcaster{}, &fakeAlerts{})
	svc.search = searcher

	if err := svc.Delete(context.Background(), member(), DeletePayload{PID: 5}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(searcher.deleted) != 1 || searcher.deleted[0] != 5 {
		t.Fatalf("expected pid 5 removed from the index, got %v", searcher.deleted)
	}

	if err := svc.Restore(context.Background(), member(), DeletePayload{PID: 5}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(searcher.indexed) != 1 || searcher.indexed[0].PID != 5 {
		t.Fatalf("expected pid 5 reindexed, got %v", searcher.indexed)
	}
}
