package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"agora/realtime/internal/access"
)

const postsPerPage = 20

// Notifier is the slice of the broadcaster the store needs for targeted
// acknowledgments. Vote verbs push their own ack once the mutation lands.
type Notifier interface {
	ToConnection(connID, event string, payload any) error
}

// Rules are the posting thresholds the store enforces on reply. They are
// loaded once at startup and never mutated.
type Rules struct {
	MinimumPostLength int
	PostRateLimit     time.Duration
}

type PostgresStore struct {
	db     *sql.DB
	rules  Rules
	notify Notifier
}

func NewPostgresStore(db *sql.DB, rules Rules) *PostgresStore {
	return &PostgresStore{db: db, rules: rules}
}

// SetNotifier wires the broadcaster used for vote acknowledgments. Called
// once during startup, before any command traffic.
func (s *PostgresStore) SetNotifier(n Notifier) {
	s.notify = n
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) getUser(ctx context.Context, tx *sql.Tx, uid int64) (User, error) {
	var user User
	err := tx.QueryRowContext(ctx, `
		SELECT uid, username, email, role, banned, last_post_at
		FROM users WHERE uid = $1
	`, uid).Scan(&user.UID, &user.Username, &user.Email, &user.Role, &user.Banned, &user.LastPostAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user %d: %w", uid, err)
	}
	return user, nil
}

// CreateReply appends a post to a topic. Rate limits, minimum content
// length, and category posting privileges are enforced here; the command
// layer only validates payload shape and guest access.
func (s *PostgresStore) CreateReply(ctx context.Context, in ReplyInput) (Post, error) {
	content := strings.TrimSpace(in.Content)
	if len(content) < s.rules.MinimumPostLength {
		return Post{}, ErrContentTooShort
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("begin reply tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Guests (uid 0) have no user row; the command layer gates them on
	// the guest posting setting.
	if in.UID > 0 {
		user, err := s.getUser(ctx, tx, in.UID)
		if err != nil {
			return Post{}, err
		}
		if user.Banned || !access.Can(access.Normalize(user.Role), access.ActionReply) {
			return Post{}, ErrNoPrivileges
		}
		if user.LastPostAt != nil && time.Since(*user.LastPostAt) < s.rules.PostRateLimit {
			return Post{}, ErrTooManyPosts
		}
	}

	var topic Topic
	err = tx.QueryRowContext(ctx, `
		SELECT tid, cid, locked, deleted FROM topics WHERE tid = $1
	`, in.TID).Scan(&topic.TID, &topic.CID, &topic.Locked, &topic.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrReply
	}
	if err != nil {
		return Post{}, fmt.Errorf("lookup topic %d: %w", in.TID, err)
	}
	if topic.Locked || topic.Deleted {
		return Post{}, ErrReply
	}

	var post Post
	err = tx.QueryRowContext(ctx, `
		INSERT INTO posts (tid, uid, content, timestamp)
		VALUES ($1, $2, $3, NOW())
		RETURNING pid, tid, uid, content, deleted, votes, timestamp
	`, in.TID, in.UID, content).Scan(
		&post.PID, &post.TID, &post.UID, &post.Content, &post.Deleted, &post.Votes, &post.Timestamp)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE topics SET post_count = post_count + 1 WHERE tid = $1
	`, in.TID); err != nil {
		return Post{}, fmt.Errorf("bump topic post count: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET last_post_at = NOW() WHERE uid = $1
	`, in.UID); err != nil {
		return Post{}, fmt.Errorf("stamp last post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("commit reply: %w", err)
	}
	return post, nil
}

var postColumns = map[string]string{
	"tid":       "tid",
	"uid":       "uid",
	"content":   "content",
	"deleted":   "deleted",
	"votes":     "votes",
	"timestamp": "timestamp",
}

// GetPostFields reads a subset of a post's columns. Unknown field names
// are rejected rather than silently dropped.
func (s *PostgresStore) GetPostFields(ctx context.Context, pid int64, fields ...string) (Post, error) {
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		column, ok := postColumns[field]
		if !ok {
			return Post{}, fmt.Errorf("unknown post field %q", field)
		}
		columns = append(columns, column)
	}
	if len(columns) == 0 {
		return Post{}, fmt.Errorf("no post fields requested")
	}

	post := Post{PID: pid}
	dests := make([]any, 0, len(columns))
	for _, column := range columns {
		switch column {
		case "tid":
			dests = append(dests, &post.TID)
		case "uid":
			dests = append(dests, &post.UID)
		case "content":
			dests = append(dests, &post.Content)
		case "deleted":
			dests = append(dests, &post.Deleted)
		case "votes":
			dests = append(dests, &post.Votes)
		case "timestamp":
			dests = append(dests, &post.Timestamp)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM posts WHERE pid = $1`, strings.Join(columns, ", "))
	err := s.db.QueryRowContext(ctx, query, pid).Scan(dests...)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("read post %d: %w", pid, err)
	}
	return post, nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(tid int64, title string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fmt.Sprintf("%d/topic", tid)
	}
	return fmt.Sprintf("%d/%s", tid, slug)
}

// EditPost rewrites a post's content and, when the post opens its topic,
// the topic's title, slug, and thumbnail.
func (s *PostgresStore) EditPost(ctx context.Context, uid, pid int64, title, content, thumbnail string) (EditResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return EditResult{}, fmt.Errorf("begin edit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerUID, tid, mainPID int64
	err = tx.QueryRowContext(ctx, `
		SELECT p.uid, p.tid, t.main_pid
		FROM posts p JOIN topics t ON t.tid = p.tid
		WHERE p.pid = $1
	`, pid).Scan(&ownerUID, &tid, &mainPID)
	if errors.Is(err, sql.ErrNoRows) {
		return EditResult{}, ErrNotFound
	}
	if err != nil {
		return EditResult{}, fmt.Errorf("lookup post %d: %w", pid, err)
	}

	user, err := s.getUser(ctx, tx, uid)
	if err != nil {
		return EditResult{}, err
	}
	role := access.Normalize(user.Role)
	if ownerUID != uid && !access.Can(role, access.ActionEdit) {
		return EditResult{}, ErrNoPrivileges
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE posts SET content = $1, edited_at = NOW(), edited_by = $2 WHERE pid = $3
	`, content, uid, pid); err != nil {
		return EditResult{}, fmt.Errorf("update post %d: %w", pid, err)
	}

	result := EditResult{
		Topic:   EditedTopic{TID: tid, Title: title, IsMainPost: pid == mainPID},
		Content: content,
	}
	if result.Topic.IsMainPost {
		if _, err := tx.ExecContext(ctx, `
			UPDATE topics SET title = $1, slug = $2, thumbnail = $3 WHERE tid = $4
		`, title, slugify(tid, title), thumbnail, tid); err != nil {
			return EditResult{}, fmt.Errorf("update topic %d: %w", tid, err)
		}
	} else {
		// Non-main edits leave the topic alone; report its current title.
		if err := tx.QueryRowContext(ctx, `SELECT title FROM topics WHERE tid = $1`, tid).Scan(&result.Topic.Title); err != nil {
			return EditResult{}, fmt.Errorf("read topic title %d: %w", tid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return EditResult{}, fmt.Errorf("commit edit: %w", err)
	}
	return result, nil
}

// DeleteOrRestorePost flips a post's deleted flag. Exactly one of two
// concurrent identical requests succeeds: the UPDATE is conditional on
// the current state, so the loser observes zero rows and fails without a
// second mutation (and therefore without a second broadcast upstream).
func (s *PostgresStore) DeleteOrRestorePost(ctx context.Context, verb DeleteVerb, uid, pid int64) error {
	deleted := verb == VerbDelete

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", verb, err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerUID int64
	err = tx.QueryRowContext(ctx, `SELECT uid FROM posts WHERE pid = $1`, pid).Scan(&ownerUID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup post %d: %w", pid, err)
	}

	user, err := s.getUser(ctx, tx, uid)
	if err != nil {
		return err
	}
	role := access.Normalize(user.Role)
	action := access.ActionDelete
	if verb == VerbRestore {
		action = access.ActionRestore
	}
	if ownerUID != uid && !access.Can(role, action) {
		return ErrNoPrivileges
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE posts SET deleted = $1 WHERE pid = $2 AND deleted = $3
	`, deleted, pid, !deleted)
	if err != nil {
		return fmt.Errorf("%s post %d: %w", verb, pid, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s post %d: %w", verb, pid, err)
	}
	if affected == 0 {
		return fmt.Errorf("post %d already %sd", pid, verb)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", verb, err)
	}
	return nil
}

// GetPrivileges computes the caller's permission set for a post from
// their role plus ownership.
func (s *PostgresStore) GetPrivileges(ctx context.Context, pid, uid int64) (Privileges, error) {
	var ownerUID int64
	err := s.db.QueryRowContext(ctx, `SELECT uid FROM posts WHERE pid = $1`, pid).Scan(&ownerUID)
	if errors.Is(err, sql.ErrNoRows) {
		return Privileges{}, ErrNotFound
	}
	if err != nil {
		return Privileges{}, fmt.Errorf("lookup post %d: %w", pid, err)
	}

	role := access.RoleGuest
	if uid > 0 {
		var roleName string
		err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE uid = $1`, uid).Scan(&roleName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Privileges{}, fmt.Errorf("lookup user %d: %w", uid, err)
		}
		role = access.Normalize(roleName)
	}

	owner := uid > 0 && uid == ownerUID
	return Privileges{
		Read:        access.Can(role, access.ActionRead),
		Editable:    owner || access.Can(role, access.ActionEdit),
		Deletable:   owner || access.Can(role, access.ActionDelete),
		ViewDeleted: access.Can(role, access.ActionViewDeleted),
	}, nil
}

// FavouritersByPosts returns, index-aligned with pids, the uids that
// favourited each post.
func (s *PostgresStore) FavouritersByPosts(ctx context.Context, pids []int64) ([][]int64, error) {
	byPID := make(map[int64][]int64, len(pids))
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, uid FROM favourites WHERE pid = ANY($1) ORDER BY created_at
	`, pids)
	if err != nil {
		return nil, fmt.Errorf("list favouriters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pid, uid int64
		if err := rows.Scan(&pid, &uid); err != nil {
			return nil, fmt.Errorf("scan favouriter: %w", err)
		}
		byPID[pid] = append(byPID[pid], uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list favouriters: %w", err)
	}

	aligned := make([][]int64, len(pids))
	for i, pid := range pids {
		aligned[i] = byPID[pid]
	}
	return aligned, nil
}

// UsernamesByUIDs resolves display names, index-aligned with uids.
func (s *PostgresStore) UsernamesByUIDs(ctx context.Context, uids []int64) ([]string, error) {
	byUID := make(map[int64]string, len(uids))
	rows, err := s.db.QueryContext(ctx, `SELECT uid, username FROM users WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid int64
		var name string
		if err := rows.Scan(&uid, &name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		byUID[uid] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}

	names := make([]string, len(uids))
	for i, uid := range uids {
		names[i] = byUID[uid]
	}
	return names, nil
}

func (s *PostgresStore) GetUsername(ctx context.Context, uid int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT username FROM users WHERE uid = $1`, uid).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup username %d: %w", uid, err)
	}
	return name, nil
}

func (s *PostgresStore) EmailsByUIDs(ctx context.Context, uids []int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email FROM users WHERE uid = ANY($1) AND email <> ''
	`, uids)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()
	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (s *PostgresStore) GetTopicSlug(ctx context.Context, tid int64) (string, error) {
	var slug string
	err := s.db.QueryRowContext(ctx, `SELECT slug FROM topics WHERE tid = $1`, tid).Scan(&slug)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup topic slug %d: %w", tid, err)
	}
	return slug, nil
}

// GetPostIndex returns the zero-based position of a post within its
// topic, counting only what the caller is allowed to see.
func (s *PostgresStore) GetPostIndex(ctx context.Context, pid int64) (int64, error) {
	var index int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM posts earlier, posts target
		WHERE target.pid = $1
		  AND earlier.tid = target.tid
		  AND earlier.pid < target.pid
		  AND NOT earlier.deleted
	`, pid).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("post index %d: %w", pid, err)
	}
	return index, nil
}

func (s *PostgresStore) GetPostPage(ctx context.Context, pid, uid int64) (PagePosition, error) {
	if _, err := s.GetPostFields(ctx, pid, "tid"); err != nil {
		return PagePosition{}, err
	}
	index, err := s.GetPostIndex(ctx, pid)
	if err != nil {
		return PagePosition{}, err
	}
	return PagePosition{
		PID:          pid,
		Page:         int(index/postsPerPage) + 1,
		Index:        index,
		PostsPerPage: postsPerPage,
	}, nil
}

// ApplyVoteVerb applies one of the five vote/favourite mutations. Each is
// idempotent: re-sending a verb that is already in effect changes
// nothing. When a notifier is wired, the originating connection gets a
// targeted acknowledgment after the mutation lands.
func (s *PostgresStore) ApplyVoteVerb(ctx context.Context, verb VoteVerb, pid int64, roomID string, uid int64, connID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vote tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE pid = $1)`, pid).Scan(&exists); err != nil {
		return fmt.Errorf("lookup post %d: %w", pid, err)
	}
	if !exists {
		return ErrNotFound
	}

	switch verb {
	case VerbUpvote, VerbDownvote:
		value := 1
		if verb == VerbDownvote {
			value = -1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO votes (pid, uid, value) VALUES ($1, $2, $3)
			ON CONFLICT (pid, uid) DO UPDATE SET value = EXCLUDED.value
		`, pid, uid, value); err != nil {
			return fmt.Errorf("%s post %d: %w", verb, pid, err)
		}
	case VerbUnvote:
		if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE pid = $1 AND uid = $2`, pid, uid); err != nil {
			return fmt.Errorf("unvote post %d: %w", pid, err)
		}
	case VerbFavourite:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO favourites (pid, uid) VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, pid, uid); err != nil {
			return fmt.Errorf("favourite post %d: %w", pid, err)
		}
	case VerbUnfavourite:
		if _, err := tx.ExecContext(ctx, `DELETE FROM favourites WHERE pid = $1 AND uid = $2`, pid, uid); err != nil {
			return fmt.Errorf("unfavourite post %d: %w", pid, err)
		}
	default:
		return fmt.Errorf("unknown vote verb %q", verb)
	}

	var votes int
	if err := tx.QueryRowContext(ctx, `
		UPDATE posts SET votes = COALESCE((SELECT SUM(value) FROM votes WHERE pid = $1), 0)
		WHERE pid = $1 RETURNING votes
	`, pid).Scan(&votes); err != nil {
		return fmt.Errorf("recount votes %d: %w", pid, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vote: %w", err)
	}

	if s.notify != nil && connID != "" {
		_ = s.notify.ToConnection(connID, "event:favourite", map[string]any{
			"pid":     pid,
			"room_id": roomID,
			"verb":    string(verb),
			"votes":   votes,
		})
	}
	return nil
}

func (s *PostgresStore) scanPosts(rows *sql.Rows) ([]Post, error) {
	posts := []Post{}
	for rows.Next() {
		var post Post
		if err := rows.Scan(&post.PID, &post.TID, &post.UID, &post.Content, &post.Deleted, &post.Votes, &post.Timestamp); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// GetFavouritesPage returns the caller's favourited posts in the
// inclusive range [start, end], newest favourite first.
func (s *PostgresStore) GetFavouritesPage(ctx context.Context, uid, start, end int64) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.pid, p.tid, p.uid, p.content, p.deleted, p.votes, p.timestamp
		FROM favourites f JOIN posts p ON p.pid = f.pid
		WHERE f.uid = $1 AND NOT p.deleted
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`, uid, end-start+1, start)
	if err != nil {
		return nil, fmt.Errorf("favourites page: %w", err)
	}
	defer rows.Close()
	return s.scanPosts(rows)
}

// GetAuthoredPostsPage returns targetUID's posts as visible to callerUID:
// deleted posts are included only for the author themselves or a role
// that can view deleted content.
func (s *PostgresStore) GetAuthoredPostsPage(ctx context.Context, callerUID, targetUID, start, end int64) ([]Post, error) {
	seeDeleted := callerUID > 0 && callerUID == targetUID
	if !seeDeleted && callerUID > 0 {
		var roleName string
		err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE uid = $1`, callerUID).Scan(&roleName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup caller %d: %w", callerUID, err)
		}
		seeDeleted = access.Can(access.Normalize(roleName), access.ActionViewDeleted)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, tid, uid, content, deleted, votes, timestamp
		FROM posts
		WHERE uid = $1 AND (NOT deleted OR $2)
		ORDER BY timestamp DESC
		LIMIT $3 OFFSET $4
	`, targetUID, seeDeleted, end-start+1, start)
	if err != nil {
		return nil, fmt.Errorf("authored posts page: %w", err)
	}
	defer rows.Close()
	return s.scanPosts(rows)
}

// GetRecentPostsPage returns the global recent feed in [start, end].
func (s *PostgresStore) GetRecentPostsPage(ctx context.Context, uid, start, end int64) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, tid, uid, content, deleted, votes, timestamp
		FROM posts
		WHERE NOT deleted
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2
	`, end-start+1, start)
	if err != nil {
		return nil, fmt.Errorf("recent posts page: %w", err)
	}
	defer rows.Close()
	return s.scanPosts(rows)
}

// PostsByPIDs fetches posts preserving the order of pids. Used to
// materialize search hits.
func (s *PostgresStore) PostsByPIDs(ctx context.Context, pids []int64) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, tid, uid, content, deleted, votes, timestamp
		FROM posts WHERE pid = ANY($1) AND NOT deleted
	`, pids)
	if err != nil {
		return nil, fmt.Errorf("posts by pids: %w", err)
	}
	defer rows.Close()
	unordered, err := s.scanPosts(rows)
	if err != nil {
		return nil, err
	}

	byPID := make(map[int64]Post, len(unordered))
	for _, post := range unordered {
		byPID[post.PID] = post
	}
	ordered := make([]Post, 0, len(pids))
	for _, pid := range pids {
		if post, ok := byPID[pid]; ok {
			ordered = append(ordered, post)
		}
	}
	return ordered, nil
}

// CreateNotification writes a notification, collapsing onto an existing
// one with the same unique id so repeat triggers update instead of piling
// up. Returns the notification id.
func (s *PostgresStore) CreateNotification(ctx context.Context, n Notification) (string, error) {
	nid := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (nid, text, path, unique_id, from_uid, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (unique_id) DO UPDATE
			SET text = EXCLUDED.text, path = EXCLUDED.path,
			    from_uid = EXCLUDED.from_uid, created_at = NOW()
		RETURNING nid
	`, nid, n.Text, n.Path, n.UniqueID, n.From).Scan(&nid)
	if err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	return nid, nil
}

// PushNotification fans a notification out to recipient inboxes.
func (s *PostgresStore) PushNotification(ctx context.Context, nid string, uids []int64) error {
	if len(uids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_inbox (nid, uid)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT (nid, uid) DO NOTHING
	`, nid, uids)
	if err != nil {
		return fmt.Errorf("push notification %s: %w", nid, err)
	}
	return nil
}

func (s *PostgresStore) GetGroupByName(ctx context.Context, name string) (Group, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE name = $1)`, name).Scan(&exists); err != nil {
		return Group{}, fmt.Errorf("lookup group %q: %w", name, err)
	}
	if !exists {
		return Group{}, ErrNotFound
	}

	group := Group{Name: name}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid FROM group_members WHERE group_name = $1 ORDER BY uid
	`, name)
	if err != nil {
		return Group{}, fmt.Errorf("list group members %q: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return Group{}, fmt.Errorf("scan group member: %w", err)
		}
		group.Members = append(group.Members, uid)
	}
	return group, rows.Err()
}

// TopicPostCounts backs the global stats refresh broadcast.
func (s *PostgresStore) TopicPostCounts(ctx context.Context) (topics, posts int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM topics WHERE NOT deleted),
			(SELECT COUNT(*) FROM posts WHERE NOT deleted)
	`).Scan(&topics, &posts)
	if err != nil {
		return 0, 0, fmt.Errorf("topic/post counts: %w", err)
	}
	return topics, posts, nil
}
