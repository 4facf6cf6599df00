package service

import (
	"errors"
	"sync"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errClientClosed   = errors.New("client is closed")
	errSendBufferFull = errors.New("client send buffer is full")
)

// Client is one websocket session. Events queued with Send are written by
// the session's write pump.
type Client struct {
	id       string
	userID   int
	username string
	conn     *websocket.Conn

	send      chan *domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(userID int, username string, conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		id:       uuid.NewString(),
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan *domain.Event, bufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() int {
	return c.userID
}

func (c *Client) Username() string {
	return c.username
}

// Send never blocks. A slow reader gets errSendBufferFull.
func (c *Client) Send(event *domain.Event) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBufferFull
	}
}

// Close stops the session. The socket itself is closed by the write pump.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}
