package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var errSessionClosed = errors.New("session closed")

const (
	clientTyping    = "typing"
	clientHeartbeat = "heartbeat"
)

type clientMessage struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// RealtimeService runs websocket sessions. Chat content is sent over REST;
// the socket only carries typing and heartbeat frames inbound.
type RealtimeService struct {
	hub       *Hub
	heartbeat *HeartbeatService
	log       *logger.Logger
}

func NewRealtimeService(hub *Hub, heartbeat *HeartbeatService, log *logger.Logger) *RealtimeService {
	return &RealtimeService{
		hub:       hub,
		heartbeat: heartbeat,
		log:       log.With("component", "realtime"),
	}
}

// HandleConn blocks until the session ends. Cleanup runs on every exit path.
func (rs *RealtimeService) HandleConn(ctx context.Context, client *Client, groupID int) {
	if err := rs.hub.Connect(ctx, client, groupID); err != nil {
		rs.log.Error("Failed to register connection", "user_id", client.userID, "group_id", groupID, "error", err)
		client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registration failed"),
			time.Now().Add(writeWait))
		client.conn.Close()
		return
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := rs.hub.Disconnect(cleanupCtx, client); err != nil {
			rs.log.Warn("Failed to disconnect", "conn_id", client.id, "error", err)
		}
		rs.heartbeat.Offline(cleanupCtx, client.userID, client.username, groupID)
	}()

	rs.heartbeat.Online(ctx, client.userID, client.username, groupID)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rs.read(gctx, client, groupID)
	})

	g.Go(func() error {
		return rs.write(gctx, client)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, errSessionClosed) && !errors.Is(err, context.Canceled) {
		rs.log.Warn("Session ended with error", "user_id", client.userID, "group_id", groupID, "error", err)
	}
}

func (rs *RealtimeService) read(ctx context.Context, client *Client, groupID int) error {
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				rs.log.Warn("Websocket closed unexpectedly", "user_id", client.userID, "error", err)
			}
			return errSessionClosed
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			rs.log.Debug("Ignoring malformed client message", "user_id", client.userID, "error", err)
			continue
		}

		switch msg.Type {
		case clientTyping:
			rs.heartbeat.Typing(ctx, client.userID, client.username, groupID, msg.IsTyping)
		case clientHeartbeat:
			client.conn.SetReadDeadline(time.Now().Add(pongWait))
			rs.heartbeat.HandleHeartbeat(ctx, client.userID, groupID)
		default:
			rs.log.Debug("Unknown client message type", "user_id", client.userID, "type", msg.Type)
		}
	}
}

func (rs *RealtimeService) write(ctx context.Context, client *Client) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.done:
			client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return errSessionClosed
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case event := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(event); err != nil {
				return err
			}
		}
	}
}
