package app

import (
	"fmt"

	"agora/realtime/internal/broadcast"
)

// AlertPresenter delivers toast-style notices to a single connection. The
// validation paths share these so the wording stays consistent across
// composer, editor and reply flows.
type AlertPresenter interface {
	ContentTooShort(connID string)
	TitleTooShort(connID string)
	TooManyPosts(connID string)
	Alert(connID string, alert broadcast.Alert)
}

type alerts struct {
	b          broadcast.Broadcaster
	minTitle   int
	minContent int
	rateLimit  int
}

// NewAlerts returns an AlertPresenter that emits "event:alert" frames through
// the given broadcaster.
func NewAlerts(b broadcast.Broadcaster, minTitle, minContent, rateLimit int) AlertPresenter {
	return &alerts{b: b, minTitle: minTitle, minContent: minContent, rateLimit: rateLimit}
}

func (a *alerts) Alert(connID string, alert broadcast.Alert) {
	_ = a.b.ToConnection(connID, "event:alert", alert)
}

func (a *alerts) ContentTooShort(connID string) {
	a.Alert(connID, broadcast.Alert{
		Title:   "Content too short",
		Message: fmt.Sprintf("Please enter a longer post. Posts should contain at least %d characters.", a.minContent),
		Type:    "danger",
		Timeout: 2000,
	})
}

func (a *alerts) TitleTooShort(connID string) {
	a.Alert(connID, broadcast.Alert{
		Title:   "Title too short",
		Message: fmt.Sprintf("Please enter a longer title. Titles should contain at least %d characters.", a.minTitle),
		Type:    "danger",
		Timeout: 2000,
	})
}

func (a *alerts) TooManyPosts(connID string) {
	a.Alert(connID, broadcast.Alert{
		Title:   "Too many posts",
		Message: fmt.Sprintf("You can only post once every %d seconds.", a.rateLimit),
		Type:    "danger",
		Timeout: 2000,
	})
}
