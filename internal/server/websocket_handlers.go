package server

import (
	"encoding/json"
	"log/slog"

	"chatapp/internal/middleware"
	"chatapp/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler returns a websocket handler that registers connections with the Hub.
// Authentication is handled by route middleware and userID is read from connection locals.
// Clients receive their notifications and may send watch_post / unwatch_post to
// follow comment events of individual posts.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals(middleware.LocalUserID).(uint)
		if !ok || uid == 0 {
			_ = conn.Close()
			return
		}

		// Register connection with scaling guardrails
		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration rejected",
				slog.Uint64("user_id", uint64(uid)), slog.String("error", err.Error()))
			reply, _ := json.Marshal(notifications.Event{
				Type:    "error",
				Payload: map[string]string{"message": err.Error()},
			})
			_ = conn.WriteMessage(websocket.TextMessage, reply)
			_ = conn.Close()
			return
		}

		// Start pumps; ReadPump unregisters the client when the socket closes
		go client.WritePump()
		client.ReadPump()
	})
}
