package store

import "errors"

// Typed failures the command layer maps onto its error taxonomy. Anything
// else coming out of the store is passed through to the caller unchanged.
var (
	ErrNotFound        = errors.New("not-found")
	ErrNoPrivileges    = errors.New("no-privileges")
	ErrContentTooShort = errors.New("content-too-short")
	ErrTooManyPosts    = errors.New("too-many-posts")
	ErrReply           = errors.New("reply-error")
)
