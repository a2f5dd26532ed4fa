package app

import (
	"errors"
	"fmt"

	"agora/realtime/internal/store"
)

// CommandError is the error shape acknowledged back to the client. Code is a
// stable machine-readable token; Message is safe to show to the user.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func commandError(code, message string) *CommandError {
	return &CommandError{Code: code, Message: message}
}

func errNotLoggedIn() *CommandError {
	return commandError("not-logged-in", "You are not logged in.")
}

func errInvalidData() *CommandError {
	return commandError("invalid-data", "Invalid data supplied.")
}

func errNotFound() *CommandError {
	return commandError("not-found", "This post no longer exists.")
}

// fromStore translates storage sentinels into client-facing command errors.
// Errors with no mapping are passed through unchanged.
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return errNotFound()
	case errors.Is(err, store.ErrNoPrivileges):
		return commandError("no-privileges", "You do not have enough privileges for this action.")
	case errors.Is(err, store.ErrContentTooShort):
		return commandError("content-too-short", "Please enter a longer post.")
	case errors.Is(err, store.ErrTooManyPosts):
		return commandError("too-many-posts", "You are posting too frequently.")
	case errors.Is(err, store.ErrReply):
		return commandError("reply-error", "Your reply could not be posted at this time.")
	default:
		return err
	}
}
