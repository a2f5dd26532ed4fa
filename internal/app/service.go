package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"agora/realtime/internal/broadcast"
	"agora/realtime/internal/config"
	"agora/realtime/internal/search"
	"agora/realtime/internal/store"
)

// Caller identifies the connection a command arrived on. UID is zero for
// guests.
type Caller struct {
	ConnID string
	UID    int64
}

func (c Caller) loggedIn() bool { return c.UID > 0 }

// dataStore is everything the command layer needs from storage.
type dataStore interface {
	CreateReply(ctx context.Context, in store.ReplyInput) (store.Post, error)
	GetPostFields(ctx context.Context, pid int64, fields ...string) (store.Post, error)
	EditPost(ctx context.Context, uid, pid int64, title, content, thumbnail string) (store.EditResult, error)
	DeleteOrRestorePost(ctx context.Context, verb store.DeleteVerb, uid, pid int64) error
	GetPrivileges(ctx context.Context, pid, uid int64) (store.Privileges, error)
	ApplyVoteVerb(ctx context.Context, verb store.VoteVerb, pid int64, roomID string, uid int64, connID string) error
	FavouritersByPosts(ctx context.Context, pids []int64) ([][]int64, error)
	UsernamesByUIDs(ctx context.Context, uids []int64) ([]string, error)
	GetUsername(ctx context.Context, uid int64) (string, error)
	EmailsByUIDs(ctx context.Context, uids []int64) ([]string, error)
	GetTopicSlug(ctx context.Context, tid int64) (string, error)
	GetPostIndex(ctx context.Context, pid int64) (int64, error)
	GetPostPage(ctx context.Context, pid, uid int64) (store.PagePosition, error)
	GetFavouritesPage(ctx context.Context, uid, start, end int64) ([]store.Post, error)
	GetAuthoredPostsPage(ctx context.Context, callerUID, targetUID, start, end int64) ([]store.Post, error)
	GetRecentPostsPage(ctx context.Context, uid, start, end int64) ([]store.Post, error)
	PostsByPIDs(ctx context.Context, pids []int64) ([]store.Post, error)
	CreateNotification(ctx context.Context, n store.Notification) (string, error)
	PushNotification(ctx context.Context, nid string, uids []int64) error
	GetGroupByName(ctx context.Context, name string) (store.Group, error)
	TopicPostCounts(ctx context.Context) (topics, posts int64, err error)
}

type postSearcher interface {
	Search(q search.Query) ([]int64, error)
	IndexPost(p search.PostRecord)
	DeletePost(pid int64)
}

type flagMailer interface {
	IsConfigured() bool
	SendFlagNotice(to []string, flaggedBy, postPath string) error
}

// Service implements the realtime post commands. Every mutating handler
// follows the same shape: validate, authorize, mutate, and only then notify.
type Service struct {
	cfg    config.Config
	store  dataStore
	bcast  broadcast.Broadcaster
	alerts AlertPresenter
	search postSearcher
	mail   flagMailer
}

func NewService(cfg config.Config, st dataStore, b broadcast.Broadcaster, alerts AlertPresenter, searcher postSearcher, mail flagMailer) *Service {
	return &Service{cfg: cfg, store: st, bcast: b, alerts: alerts, search: searcher, mail: mail}
}

// pageSize is how many posts an infinite-scroll request loads at once.
const pageSize = 10

// Reply creates a new post in a topic and, on success, pushes it to every
// connected client together with refreshed forum totals.
func (s *Service) Reply(ctx context.Context, caller Caller, p ReplyPayload) (store.Post, error) {
	if !caller.loggedIn() && !s.cfg.AllowGuestPosting {
		s.alerts.Alert(caller.ConnID, broadcast.Alert{
			Title:   "Reply Unsuccessful",
			Message: "You don't seem to be logged in, so you cannot reply.",
			Type:    "danger",
			Timeout: 2000,
		})
		return store.Post{}, errNotLoggedIn()
	}
	if err := p.validate(); err != nil {
		return store.Post{}, err
	}

	post, err := s.store.CreateReply(ctx, store.ReplyInput{UID: caller.UID, TID: p.TID, Content: p.Content})
	if err != nil {
		s.replyFailureAlert(caller.ConnID, err)
		return store.Post{}, fromStore(err)
	}

	s.alerts.Alert(caller.ConnID, broadcast.Alert{
		Title:   "Reply Successful",
		Message: "You have successfully replied. Click here to view your reply.",
		Type:    "success",
		Timeout: 2000,
	})
	s.bcast.Global("event:new_post", map[string]any{"posts": []store.Post{post}})
	s.emitTopicPostStats(ctx)
	if s.search != nil {
		s.search.IndexPost(search.PostRecord{PID: post.PID, TID: post.TID, Content: post.Content})
	}
	return post, nil
}

func (s *Service) replyFailureAlert(connID string, err error) {
	mapped := fromStore(err)
	cmdErr, ok := mapped.(*CommandError)
	if !ok {
		return
	}
	switch cmdErr.Code {
	case "content-too-short":
		s.alerts.ContentTooShort(connID)
	case "too-many-posts":
		s.alerts.TooManyPosts(connID)
	case "no-privileges":
		s.alerts.Alert(connID, broadcast.Alert{
			Title:   "Unable to post",
			Message: "You do not have posting privileges in this category.",
			Type:    "danger",
			Timeout: 7500,
		})
	case "reply-error":
		s.alerts.Alert(connID, broadcast.Alert{
			Title:   "Reply Unsuccessful",
			Message: "Your reply could not be posted at this time. Please try again later.",
			Type:    "warning",
			Timeout: 2000,
		})
	}
}

// Upvote and friends all funnel into vote. The verbs share a payload shape
// and a silent-drop policy for incomplete payloads.

func (s *Service) Upvote(ctx context.Context, caller Caller, p VotePayload) error {
	return s.vote(ctx, caller, store.VerbUpvote, p)
}

func (s *Service) Downvote(ctx context.Context, caller Caller, p VotePayload) error {
	return s.vote(ctx, caller, store.VerbDownvote, p)
}

func (s *Service) Unvote(ctx context.Context, caller Caller, p VotePayload) error {
	return s.vote(ctx, caller, store.VerbUnvote, p)
}

func (s *Service) Favourite(ctx context.Context, caller Caller, p VotePayload) error {
	return s.vote(ctx, caller, store.VerbFavourite, p)
}

func (s *Service) Unfavourite(ctx context.Context, caller Caller, p VotePayload) error {
	return s.vote(ctx, caller, store.VerbUnfavourite, p)
}

func (s *Service) vote(ctx context.Context, caller Caller, verb store.VoteVerb, p VotePayload) error {
	if !p.actionable() {
		return nil
	}
	if err := s.store.ApplyVoteVerb(ctx, verb, p.PID, p.RoomID, caller.UID, caller.ConnID); err != nil {
		log.Printf("app: %s pid=%d uid=%d: %v", verb, p.PID, caller.UID, err)
	}
	return nil
}

// GetRawPost returns the unrendered content of a post. Deleted posts are
// reported as missing.
func (s *Service) GetRawPost(ctx context.Context, caller Caller, pid int64) (string, error) {
	if pid <= 0 {
		return "", errInvalidData()
	}
	post, err := s.store.GetPostFields(ctx, pid, "content", "deleted")
	if err != nil {
		return "", fromStore(err)
	}
	if post.Deleted {
		return "", errNotFound()
	}
	return post.Content, nil
}

// Edit rewrites a post and, for main posts, its topic title. Successful
// edits are announced to the post's topic room.
func (s *Service) Edit(ctx context.Context, caller Caller, p EditPayload) error {
	if !caller.loggedIn() {
		s.alerts.Alert(caller.ConnID, broadcast.Alert{
			Title:   "Can't edit",
			Message: "Guests can't edit posts!",
			Type:    "warning",
			Timeout: 2000,
		})
		return errNotLoggedIn()
	}
	if err := p.validate(); err != nil {
		return err
	}
	title := strings.TrimSpace(p.Title)
	if len([]rune(title)) < s.cfg.MinimumTitleLength {
		s.alerts.TitleTooShort(caller.ConnID)
		return commandError("title-too-short", "Please enter a longer title.")
	}
	content := strings.TrimSpace(p.Content)
	if len([]rune(content)) < s.cfg.MinimumPostLength {
		s.alerts.ContentTooShort(caller.ConnID)
		return commandError("content-too-short", "Please enter a longer post.")
	}

	result, err := s.store.EditPost(ctx, caller.UID, p.PID, title, content, p.TopicThumb)
	if err != nil {
		return fromStore(err)
	}

	room := topicRoom(result.Topic.TID)
	if err := s.bcast.ToRoom(ctx, room, "event:post_edited", map[string]any{
		"pid":        p.PID,
		"title":      result.Topic.Title,
		"isMainPost": result.Topic.IsMainPost,
		"content":    result.Content,
	}); err != nil {
		log.Printf("app: broadcast post_edited pid=%d room=%s: %v", p.PID, room, err)
	}
	if s.search != nil {
		s.search.IndexPost(search.PostRecord{PID: p.PID, TID: result.Topic.TID, Content: result.Content})
	}
	return nil
}

// Delete soft-deletes a post; Restore brings it back. Both resolve the
// topic room from storage before mutating so the announcement cannot be
// misdirected by a stale client payload.
func (s *Service) Delete(ctx context.Context, caller Caller, p DeletePayload) error {
	return s.deleteOrRestore(ctx, caller, store.VerbDelete, p)
}

func (s *Service) Restore(ctx context.Context, caller Caller, p DeletePayload) error {
	return s.deleteOrRestore(ctx, caller, store.VerbRestore, p)
}

func (s *Service) deleteOrRestore(ctx context.Context, caller Caller, verb store.DeleteVerb, p DeletePayload) error {
	if !caller.loggedIn() {
		return errNotLoggedIn()
	}
	if err := p.validate(); err != nil {
		return err
	}
	post, err := s.store.GetPostFields(ctx, p.PID, "tid", "content")
	if err != nil {
		return fromStore(err)
	}
	if err := s.store.DeleteOrRestorePost(ctx, verb, caller.UID, p.PID); err != nil {
		return fromStore(err)
	}

	s.emitTopicPostStats(ctx)
	event := "event:post_deleted"
	if verb == store.VerbRestore {
		event = "event:post_restored"
	}
	room := topicRoom(post.TID)
	if err := s.bcast.ToRoom(ctx, room, event, map[string]any{"pid": p.PID}); err != nil {
		log.Printf("app: broadcast %s pid=%d room=%s: %v", event, p.PID, room, err)
	}
	if s.search != nil {
		if verb == store.VerbDelete {
			s.search.DeletePost(p.PID)
		} else {
			s.search.IndexPost(search.PostRecord{PID: p.PID, TID: post.TID, Content: post.Content})
		}
	}
	return nil
}

// GetPrivileges reports what the caller may do to a post.
func (s *Service) GetPrivileges(ctx context.Context, caller Caller, pid int64) (store.Privileges, error) {
	if pid <= 0 {
		return store.Privileges{}, errInvalidData()
	}
	privs, err := s.store.GetPrivileges(ctx, pid, caller.UID)
	if err != nil {
		return store.Privileges{}, fromStore(err)
	}
	privs.PID = pid
	return privs, nil
}

// favouriteNamesShown caps how many favouriters are named before the rest
// collapse into a count.
const favouriteNamesShown = 5

// GetFavouritedUsers builds the "A, B and 2 others" summary for a post. A
// post with no favouriters yields an empty summary.
func (s *Service) GetFavouritedUsers(ctx context.Context, caller Caller, pid int64) (string, error) {
	if pid <= 0 {
		return "", errInvalidData()
	}
	lists, err := s.store.FavouritersByPosts(ctx, []int64{pid})
	if err != nil {
		return "", fromStore(err)
	}
	var uids []int64
	if len(lists) > 0 {
		uids = lists[0]
	}
	if len(uids) == 0 {
		return "", nil
	}

	rest := 0
	if len(uids) > favouriteNamesShown {
		rest = len(uids) - favouriteNamesShown
		uids = uids[:favouriteNamesShown]
	}
	names, err := s.store.UsernamesByUIDs(ctx, uids)
	if err != nil {
		return "", fromStore(err)
	}
	summary := strings.Join(names, ", ")
	switch {
	case rest == 1:
		summary += " and 1 other"
	case rest > 1:
		summary += fmt.Sprintf(" and %d others", rest)
	}
	return summary, nil
}

// GetPidPage locates a post within its topic's pagination for the caller.
func (s *Service) GetPidPage(ctx context.Context, caller Caller, pid int64) (store.PagePosition, error) {
	if pid <= 0 {
		return store.PagePosition{}, errInvalidData()
	}
	pos, err := s.store.GetPostPage(ctx, pid, caller.UID)
	if err != nil {
		return store.PagePosition{}, fromStore(err)
	}
	return pos, nil
}

// GetPidIndex returns a post's position within its topic.
func (s *Service) GetPidIndex(ctx context.Context, caller Caller, pid int64) (int64, error) {
	if pid <= 0 {
		return 0, errInvalidData()
	}
	index, err := s.store.GetPostIndex(ctx, pid)
	if err != nil {
		return 0, fromStore(err)
	}
	return index, nil
}

// Flag reports a post to the administrators group. The pipeline is
// sequential and fail-fast; flags of the same post collapse into one
// notification. The email notice is best-effort.
func (s *Service) Flag(ctx context.Context, caller Caller, pid int64) error {
	if !caller.loggedIn() {
		return errNotLoggedIn()
	}
	if pid <= 0 {
		return errInvalidData()
	}

	name, err := s.store.GetUsername(ctx, caller.UID)
	if err != nil {
		return fromStore(err)
	}
	post, err := s.store.GetPostFields(ctx, pid, "tid")
	if err != nil {
		return fromStore(err)
	}
	slug, err := s.store.GetTopicSlug(ctx, post.TID)
	if err != nil {
		return fromStore(err)
	}
	path := fmt.Sprintf("%s/topic/%s#%d", s.cfg.RelativePath, slug, pid)

	group, err := s.store.GetGroupByName(ctx, "administrators")
	if err != nil {
		return fromStore(err)
	}
	nid, err := s.store.CreateNotification(ctx, store.Notification{
		Text:     fmt.Sprintf("%s flagged a post.", name),
		Path:     path,
		UniqueID: fmt.Sprintf("post_flag:%d", pid),
		From:     caller.UID,
	})
	if err != nil {
		return fromStore(err)
	}
	if err := s.store.PushNotification(ctx, nid, group.Members); err != nil {
		return fromStore(err)
	}

	if s.mail != nil && s.mail.IsConfigured() {
		emails, err := s.store.EmailsByUIDs(ctx, group.Members)
		if err != nil {
			log.Printf("app: flag pid=%d admin emails: %v", pid, err)
			return nil
		}
		if err := s.mail.SendFlagNotice(emails, name, path); err != nil {
			log.Printf("app: flag pid=%d notice email: %v", pid, err)
		}
	}
	return nil
}

// LoadMoreFavourites pages through the caller's favourited posts.
func (s *Service) LoadMoreFavourites(ctx context.Context, caller Caller, p FavouritesCursorPayload) ([]store.Post, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	start := *p.After
	posts, err := s.store.GetFavouritesPage(ctx, caller.UID, start, start+pageSize-1)
	if err != nil {
		return nil, fromStore(err)
	}
	return posts, nil
}

// LoadMoreUserPosts pages through a user's authored posts, hiding deleted
// ones from callers without moderation rights.
func (s *Service) LoadMoreUserPosts(ctx context.Context, caller Caller, p UserPostsPayload) ([]store.Post, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	start := *p.After
	posts, err := s.store.GetAuthoredPostsPage(ctx, caller.UID, p.UID, start, start+pageSize-1)
	if err != nil {
		return nil, fromStore(err)
	}
	return posts, nil
}

// GetRecentPosts returns the newest posts the caller may see, optionally
// narrowed by a search term.
func (s *Service) GetRecentPosts(ctx context.Context, caller Caller, p RecentPostsPayload) ([]store.Post, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if term := strings.TrimSpace(p.Term); term != "" && s.search != nil {
		pids, err := s.search.Search(search.Query{Term: term, Limit: int(p.Count)})
		if err != nil {
			return nil, err
		}
		if len(pids) == 0 {
			return []store.Post{}, nil
		}
		posts, err := s.store.PostsByPIDs(ctx, pids)
		if err != nil {
			return nil, fromStore(err)
		}
		return posts, nil
	}
	posts, err := s.store.GetRecentPostsPage(ctx, caller.UID, 0, p.Count-1)
	if err != nil {
		return nil, fromStore(err)
	}
	return posts, nil
}

func (s *Service) emitTopicPostStats(ctx context.Context) {
	topics, posts, err := s.store.TopicPostCounts(ctx)
	if err != nil {
		log.Printf("app: topic/post counts: %v", err)
		return
	}
	s.bcast.Global("event:topic_post_stats", map[string]any{
		"topicCount": topics,
		"postCount":  posts,
	})
}

func topicRoom(tid int64) string {
	return fmt.Sprintf("topic_%d", tid)
}
