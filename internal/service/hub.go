package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/ReilBleem13/ChatRelay/internal/logger"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const broadcastParallelism = 64

// Hub tracks the connections this process holds, grouped by chat group.
// The first connection of a group subscribes the relay and the last one
// leaving unsubscribes it. Both transitions are decided under mu.
type Hub struct {
	relay RelayIn
	log   *logger.Logger

	mu        sync.Mutex
	groups    map[int]map[string]Conn
	connGroup map[string]int
	owners    map[string]int
}

func NewHub(relay RelayIn, log *logger.Logger) *Hub {
	return &Hub{
		relay:     relay,
		log:       log.With("component", "hub"),
		groups:    make(map[int]map[string]Conn),
		connGroup: make(map[string]int),
		owners:    make(map[string]int),
	}
}

func (h *Hub) Connect(ctx context.Context, conn Conn, groupID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.connGroup[conn.ID()]; ok {
		return domain.ErrConflict.WithMessage(fmt.Sprintf("connection already joined group %d", current))
	}

	conns, ok := h.groups[groupID]
	if !ok {
		if err := h.relay.Subscribe(ctx, groupID, h.relayHandler(groupID)); err != nil {
			return fmt.Errorf("subscribe group %d: %w", groupID, err)
		}
		conns = make(map[string]Conn)
		h.groups[groupID] = conns
	}

	conns[conn.ID()] = conn
	h.connGroup[conn.ID()] = groupID
	h.owners[conn.ID()] = conn.UserID()

	h.log.Info("User connected", "user_id", conn.UserID(), "group_id", groupID, "conn_id", conn.ID(), "local_conns", len(conns))
	return nil
}

// Disconnect removes conn and closes it. Unknown or already removed
// connections are ignored.
func (h *Hub) Disconnect(ctx context.Context, conn Conn) error {
	h.mu.Lock()
	groupID, ok := h.connGroup[conn.ID()]
	if !ok {
		h.mu.Unlock()
		return nil
	}

	userID := h.owners[conn.ID()]
	delete(h.connGroup, conn.ID())
	delete(h.owners, conn.ID())

	var err error
	conns := h.groups[groupID]
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(h.groups, groupID)
		if uerr := h.relay.Unsubscribe(ctx, groupID); uerr != nil {
			err = fmt.Errorf("unsubscribe group %d: %w", groupID, uerr)
		}
	}
	h.mu.Unlock()

	h.log.Info("User disconnected", "user_id", userID, "group_id", groupID, "conn_id", conn.ID())
	return multierr.Append(err, conn.Close())
}

// BroadcastToGroup pushes event to every local connection of the group and
// returns how many accepted it. Connections that fail are disconnected.
func (h *Hub) BroadcastToGroup(ctx context.Context, groupID int, event *domain.Event) int {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.groups[groupID]))
	for _, c := range h.groups[groupID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var (
		g         errgroup.Group
		deliverMu sync.Mutex
		delivered int
	)
	g.SetLimit(broadcastParallelism)

	for _, c := range conns {
		g.Go(func() error {
			if err := c.Send(event); err != nil {
				h.log.Warn("Dropping connection after failed send",
					"group_id", groupID,
					"conn_id", c.ID(),
					"error", err,
				)
				if derr := h.Disconnect(context.WithoutCancel(ctx), c); derr != nil {
					h.log.Warn("Failed to disconnect", "conn_id", c.ID(), "error", derr)
				}
				return nil
			}

			deliverMu.Lock()
			delivered++
			deliverMu.Unlock()
			return nil
		})
	}
	g.Wait()

	return delivered
}

// Shutdown closes every connection and drops every relay subscription.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	groups := h.groups
	h.groups = make(map[int]map[string]Conn)
	h.connGroup = make(map[string]int)
	h.owners = make(map[string]int)
	h.mu.Unlock()

	var err error
	for groupID, conns := range groups {
		for _, c := range conns {
			err = multierr.Append(err, c.Close())
		}
		err = multierr.Append(err, h.relay.Unsubscribe(ctx, groupID))
	}

	h.log.Info("Hub stopped", "groups", len(groups))
	return err
}

func (h *Hub) ConnectionCount(groupID int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.groups[groupID])
}

func (h *Hub) GroupCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.groups)
}

func (h *Hub) relayHandler(groupID int) domain.EventHandler {
	return func(ctx context.Context, event *domain.Event) {
		n := h.BroadcastToGroup(ctx, groupID, event)
		h.log.Debug("Relayed event", "group_id", groupID, "type", event.Type, "delivered", n)
	}
}
