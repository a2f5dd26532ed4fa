package store

import "time"

type User struct {
	UID        int64
	Username   string
	Email      string
	Role       string
	Banned     bool
	LastPostAt *time.Time
	CreatedAt  time.Time
}

type Topic struct {
	TID       int64
	CID       int64
	UID       int64
	Title     string
	Slug      string
	Thumbnail string
	MainPID   int64
	Locked    bool
	Deleted   bool
	PostCount int
	CreatedAt time.Time
}

type Post struct {
	PID       int64     `json:"pid"`
	TID       int64     `json:"tid"`
	UID       int64     `json:"uid"`
	Content   string    `json:"content"`
	Deleted   bool      `json:"deleted"`
	Votes     int       `json:"votes"`
	Timestamp time.Time `json:"timestamp"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	EditedBy  int64     `json:"editedBy,omitempty"`
}

// Privileges is the per-post permission set returned to clients. The PID
// annotation is filled in by the command layer.
type Privileges struct {
	PID         int64 `json:"pid"`
	Read        bool  `json:"read"`
	Editable    bool  `json:"editable"`
	Deletable   bool  `json:"deletable"`
	ViewDeleted bool  `json:"view_deleted"`
}

type Notification struct {
	NID       string
	Text      string
	Path      string
	UniqueID  string
	From      int64
	CreatedAt time.Time
}

type Group struct {
	Name    string
	Members []int64
}

// PagePosition locates a post within its topic's pagination.
type PagePosition struct {
	PID          int64 `json:"pid"`
	Page         int   `json:"page"`
	Index        int64 `json:"index"`
	PostsPerPage int   `json:"postsPerPage"`
}

type ReplyInput struct {
	UID     int64
	TID     int64
	Content string
}

// EditResult carries what the edit mutation settled on, including the
// topic fields a room broadcast needs.
type EditResult struct {
	Topic   EditedTopic
	Content string
}

type EditedTopic struct {
	TID        int64
	Title      string
	IsMainPost bool
}

// VoteVerb is one of the five vote/favourite mutations routed through a
// single store call.
type VoteVerb string

const (
	VerbUpvote      VoteVerb = "upvote"
	VerbDownvote    VoteVerb = "downvote"
	VerbUnvote      VoteVerb = "unvote"
	VerbFavourite   VoteVerb = "favourite"
	VerbUnfavourite VoteVerb = "unfavourite"
)

// DeleteVerb selects the direction of the delete/restore pipeline.
type DeleteVerb string

const (
	VerbDelete  DeleteVerb = "delete"
	VerbRestore DeleteVerb = "restore"
)
