package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"agora/realtime/internal/auth"
	"agora/realtime/internal/broadcast"
	"agora/realtime/internal/metrics"
)

const (
	commandTimeout = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 25 * time.Second
	maxFrameSize   = 64 << 10
)

// clientFrame is what clients send: a command name, an optional payload and
// an optional correlation id. Frames without an id get no acknowledgement.
type clientFrame struct {
	ID      int64           `json:"id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type ackFrame struct {
	ID     int64         `json:"id"`
	Result any           `json:"result"`
	Error  *CommandError `json:"error,omitempty"`
}

type roomRegistry interface {
	Join(ctx context.Context, connID, room string) error
	Leave(ctx context.Context, connID, room string) error
	LeaveAll(ctx context.Context, connID string) error
}

type commandFunc func(ctx context.Context, caller Caller, payload json.RawMessage) (any, error)

// SocketServer upgrades HTTP requests to websocket sessions and dispatches
// command frames to the Service. Identity comes from an optional JWT in the
// "token" query parameter; without one the session runs as a guest.
type SocketServer struct {
	service  *Service
	hub      *broadcast.Hub
	rooms    roomRegistry
	secret   []byte
	upgrader websocket.Upgrader
	handlers map[string]commandFunc
}

func NewSocketServer(service *Service, hub *broadcast.Hub, rooms roomRegistry, jwtSecret []byte, corsOrigin string) *SocketServer {
	s := &SocketServer{
		service: service,
		hub:     hub,
		rooms:   rooms,
		secret:  jwtSecret,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if corsOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == corsOrigin
		},
	}
	s.handlers = s.commandTable()
	return s
}

func (s *SocketServer) commandTable() map[string]commandFunc {
	svc := s.service
	return map[string]commandFunc{
		"posts.reply": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var p ReplyPayload
			if err := decodeInto(raw, &p); err != nil {
				return nil, err
			}
			return svc.Reply(ctx, c, p)
		},
		"posts.upvote":      s.voteCommand(svc.Upvote),
		"posts.downvote":    s.voteCommand(svc.Downvote),
		"posts.unvote":      s.voteCommand(svc.Unvote),
		"posts.favourite":   s.voteCommand(svc.Favourite),
		"posts.unfavourite": s.voteCommand(svc.Unfavourite),
		"posts.getRawPost": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			pid, err := decodePID(raw)
			if err != nil {
				return nil, err
			}
			return svc.GetRawPost(ctx, c, pid)
		},
		"posts.edit": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var p EditPayload
			if err := decodeInto(raw, &p); err != nil {
				return nil, err
			}
			return nil, svc.Edit(ctx, c, p)
		},
		"posts.delete": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var p DeletePayload
			if err := decodeInto(raw, &p); err != nil {
				return nil, err
			}
			return nil, svc.Delete(ctx, c, p)
		},
		"posts.restore": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var p DeletePayload
			if err := decodeInto(raw, &p); err != nil {
				return nil, err
			}
			return nil, svc.Restore(ctx, c, p)
		},
		"posts.getPrivileges": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			pid, err := decodePID(raw)
			if err != nil {
				return nil, err
			}
			return svc.GetPrivileges(ctx, c, pid)
		},
		"posts.getFavouritedUsers": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			pid, err := decodePID(raw)
			if err != nil {
				return nil, err
			}
			return svc.GetFavouritedUsers(ctx, c, pid)
		},
		"posts.getPidPage": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			pid, err := decodePID(raw)
			if err != nil {
				return nil, err
			}
			return svc.GetPidPage(ctx, c, pid)
		},
		"posts.getPidIndex": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			pid, err := decodePID(raw)
			if err != nil {
				return nil, err
			}
			return svc.GetPidIndex(ctx, c, pid)
		},
		"posts.flag": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			pid, err := decodePID(raw)
			if err != nil {
				return nil, err
			}
			return nil, svc.Flag(ctx, c, pid)
		},
		"posts.loadMoreFavourites": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var p FavouritesCursorPayload
			if err := decodeInto(raw, &p); err != nil {
				return nil, err
			}
			return svc.LoadMoreFavourites(ctx, c, p)
		},
		"posts.loadMoreUserPosts": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var p UserPostsPayload
			if err := decodeInto(raw, &p); err != nil {
				return nil, err
			}
			return svc.LoadMoreUserPosts(ctx, c, p)
		},
		"posts.getRecentPosts": func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
			var p RecentPostsPayload
			if err := decodeInto(raw, &p); err != nil {
				return nil, err
			}
			return svc.GetRecentPosts(ctx, c, p)
		},
	}
}

func (s *SocketServer) voteCommand(fn func(context.Context, Caller, VotePayload) error) commandFunc {
	return func(ctx context.Context, c Caller, raw json.RawMessage) (any, error) {
		var p VotePayload
		if err := decodeInto(raw, &p); err != nil {
			return nil, err
		}
		return nil, fn(ctx, c, p)
	}
}

func decodeInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidData()
	}
	return nil
}

func decodePID(raw json.RawMessage) (int64, error) {
	var pid int64
	if len(raw) == 0 {
		return 0, errInvalidData()
	}
	if err := json.Unmarshal(raw, &pid); err != nil {
		return 0, errInvalidData()
	}
	return pid, nil
}

func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("socket: upgrade: %v", err)
		return
	}

	var uid int64
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := auth.ParseToken(s.secret, token)
		if err != nil {
			log.Printf("socket: rejected token: %v", err)
		} else {
			uid = claims.UID
		}
	}

	connID := ulid.Make().String()
	conn := s.hub.Register(connID, ws)
	caller := Caller{ConnID: connID, UID: uid}
	defer func() {
		s.hub.Unregister(connID)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rooms.LeaveAll(ctx, connID); err != nil {
			log.Printf("socket: leave rooms conn=%s: %v", connID, err)
		}
	}()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go pingLoop(ws, stop)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("socket: conn=%s read: %v", connID, err)
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("socket: conn=%s bad frame: %v", connID, err)
			continue
		}
		s.handleFrame(conn, caller, frame)
	}
}

func pingLoop(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (s *SocketServer) handleFrame(conn *broadcast.Conn, caller Caller, frame clientFrame) {
	switch frame.Event {
	case "rooms.enter", "rooms.leave":
		s.handleRoomFrame(conn, caller, frame)
	default:
		handler, ok := s.handlers[frame.Event]
		if !ok {
			s.ack(conn, frame.ID, nil, commandError("unknown-event", "Unknown event."))
			return
		}
		// Each command runs on its own goroutine so a slow query cannot
		// stall the read loop.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			result, err := handler(ctx, caller, frame.Payload)
			metrics.CommandsTotal.WithLabelValues(frame.Event, commandStatus(err)).Inc()
			s.ack(conn, frame.ID, result, err)
		}()
	}
}

func (s *SocketServer) handleRoomFrame(conn *broadcast.Conn, caller Caller, frame clientFrame) {
	var p struct {
		Room string `json:"room"`
	}
	if err := decodeInto(frame.Payload, &p); err != nil || p.Room == "" {
		s.ack(conn, frame.ID, nil, errInvalidData())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	var err error
	if frame.Event == "rooms.enter" {
		err = s.rooms.Join(ctx, caller.ConnID, p.Room)
	} else {
		err = s.rooms.Leave(ctx, caller.ConnID, p.Room)
	}
	metrics.CommandsTotal.WithLabelValues(frame.Event, commandStatus(err)).Inc()
	if err != nil {
		log.Printf("socket: %s conn=%s room=%s: %v", frame.Event, caller.ConnID, p.Room, err)
		s.ack(conn, frame.ID, nil, commandError("room-error", "Could not update room membership."))
		return
	}
	s.ack(conn, frame.ID, "ok", nil)
}

func commandStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if cmdErr, ok := err.(*CommandError); ok {
		return cmdErr.Code
	}
	return "error"
}

func (s *SocketServer) ack(conn *broadcast.Conn, id int64, result any, err error) {
	if id == 0 {
		return
	}
	ack := ackFrame{ID: id, Result: result}
	if err != nil {
		if cmdErr, ok := err.(*CommandError); ok {
			ack.Error = cmdErr
		} else {
			ack.Error = commandError("error", err.Error())
		}
		ack.Result = nil
	}
	data, err := json.Marshal(ack)
	if err != nil {
		log.Printf("socket: marshal ack id=%d: %v", id, err)
		return
	}
	if err := conn.Send(data); err != nil {
		log.Printf("socket: ack conn=%s id=%d: %v", conn.ID(), id, err)
	}
}
