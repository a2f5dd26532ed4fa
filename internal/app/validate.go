package app

// Command payloads as decoded off the wire. Validation is deliberately
// shallow here; content and permission rules live in the store layer.

type ReplyPayload struct {
	TID     int64  `json:"tid"`
	Content string `json:"content"`
}

func (p ReplyPayload) validate() error {
	if p.TID <= 0 || p.Content == "" {
		return errInvalidData()
	}
	return nil
}

type VotePayload struct {
	PID    int64  `json:"pid"`
	RoomID string `json:"room_id"`
}

// actionable reports whether the payload carries enough to act on. Vote
// traffic is fire-and-forget, so an incomplete payload is dropped rather
// than rejected.
func (p VotePayload) actionable() bool {
	return p.PID > 0 && p.RoomID != ""
}

type EditPayload struct {
	PID        int64  `json:"pid"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	TopicThumb string `json:"topic_thumb"`
}

func (p EditPayload) validate() error {
	if p.PID <= 0 || p.Title == "" || p.Content == "" {
		return errInvalidData()
	}
	return nil
}

type DeletePayload struct {
	PID int64 `json:"pid"`
	TID int64 `json:"tid"`
}

func (p DeletePayload) validate() error {
	if p.PID <= 0 {
		return errInvalidData()
	}
	return nil
}

type FavouritesCursorPayload struct {
	After *int64 `json:"after"`
}

func (p FavouritesCursorPayload) validate() error {
	if p.After == nil || *p.After < 0 {
		return errInvalidData()
	}
	return nil
}

type UserPostsPayload struct {
	UID   int64  `json:"uid"`
	After *int64 `json:"after"`
}

func (p UserPostsPayload) validate() error {
	if p.UID <= 0 || p.After == nil || *p.After < 0 {
		return errInvalidData()
	}
	return nil
}

type RecentPostsPayload struct {
	Count int64  `json:"count"`
	Term  string `json:"term"`
}

func (p RecentPostsPayload) validate() error {
	if p.Count <= 0 {
		return errInvalidData()
	}
	return nil
}
