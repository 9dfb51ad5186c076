package websocket

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wafferli/wafferli-api/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Браузерные клиенты приходят с других origin, доступ контролируется токеном
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler возвращает HTTP-обработчик, поднимающий WebSocket соединение.
// Токен передается в query-параметре, т.к. браузерный WebSocket API
// не позволяет выставить заголовок Authorization.
func Handler(manager *Manager, jwtService *utils.JWTService, peerOf PeerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}

		userID, err := jwtService.ExtractUserID(tokenString)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		if _, err := uuid.Parse(userID); err != nil {
			http.Error(w, "Invalid user ID", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Ошибка обновления соединения до WebSocket: %v", err)
			return
		}

		client := NewClient(userID, conn, manager, peerOf)
		client.Start()
	}
}
