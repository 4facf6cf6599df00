package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/utils"
	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("url", "ws://127.0.0.1:8080", "server websocket base url")
	groupID   = flag.Int("group", 1, "group to join")
	firstUser = flag.Int("first-user", 1, "user id of the first connection")
	nConns    = flag.Int("conns", 1000, "number of websocket connections")
	secret    = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	heartbeat = flag.Duration("heartbeat", 30*time.Second, "heartbeat interval")
)

// Every user id in the range must already be a member of the group.
func main() {
	flag.Parse()
	if *secret == "" {
		log.Fatal("JWT secret is required (-secret or JWT_SECRET)")
	}

	var received atomic.Int64
	conns := make([]*websocket.Conn, 0, *nConns)

	for i := 0; i < *nConns; i++ {
		userID := *firstUser + i
		token, err := utils.GenerateAccessToken(userID, fmt.Sprintf("load%d", userID), *secret, time.Hour)
		if err != nil {
			log.Fatalf("Failed to sign token for %d: %v", userID, err)
		}

		url := fmt.Sprintf("%s/ws/groups/%d?token=%s", *baseURL, *groupID, token)
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			log.Fatalf("Failed to connect %d: %v", i, err)
		}

		go func(conn *websocket.Conn) {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					log.Printf("conn closed: %v", err)
					return
				}
				received.Add(1)
			}
		}(c)
		conns = append(conns, c)
	}
	log.Printf("all %d connections established", len(conns))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, c := range conns {
				c.WriteJSON(map[string]string{"type": "heartbeat"})
			}
			log.Printf("events received so far: %d", received.Load())
		case <-quit:
			for _, c := range conns {
				c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.Close()
			}
			log.Printf("closed, events received: %d", received.Load())
			return
		}
	}
}
