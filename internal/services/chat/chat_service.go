package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wafferli/wafferli-api/internal/config"
	"github.com/wafferli/wafferli-api/internal/db"
	"github.com/wafferli/wafferli-api/internal/models"
	"github.com/wafferli/wafferli-api/internal/utils"
	ws "github.com/wafferli/wafferli-api/internal/websocket"
)

// ChatService представляет сервис для переписки покупателя и продавца
type ChatService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	wsManager  *ws.Manager
}

// NewChatService создает новый экземпляр ChatService
func NewChatService(cfg *config.Config, wsManager *ws.Manager) *ChatService {
	return &ChatService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
		wsManager:  wsManager,
	}
}

// GetChats возвращает список чатов пользователя
func (s *ChatService) GetChats(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Преобразуем userID в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Получаем контекст для работы с БД
	ctx, cancel := db.GetContext()
	defer cancel()

	// Запрос списка чатов
	query := `
		SELECT c.id, c.ad_id, c.buyer_id, c.seller_id, c.created_at, c.updated_at,
			   c.last_message_text, c.last_message_time, c.is_active,
			   COUNT(m.id) FILTER (WHERE m.sender_id != $1 AND m.is_read = false) AS unread_count
		FROM chats c
		LEFT JOIN messages m ON c.id = m.chat_id
		WHERE c.buyer_id = $1 OR c.seller_id = $1
		GROUP BY c.id
		ORDER BY c.last_message_time DESC NULLS LAST, c.created_at DESC
	`

	rows, err := db.Pool.Query(ctx, query, userUUID)
	if err != nil {
		log.Printf("Ошибка запроса чатов: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения чатов"})
	}
	defer rows.Close()

	// Обрабатываем результаты
	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		var adID *uuid.UUID
		var lastMessageText pgtype.Text
		var lastMessageTime *time.Time
		var unreadCount int

		if err := rows.Scan(
			&chat.ID,
			&adID,
			&chat.BuyerID,
			&chat.SellerID,
			&chat.CreatedAt,
			&chat.UpdatedAt,
			&lastMessageText,
			&lastMessageTime,
			&chat.IsActive,
			&unreadCount,
		); err != nil {
			log.Printf("Ошибка сканирования строки: %v", err)
			continue
		}

		chat.AdID = adID
		if lastMessageText.Valid {
			chat.LastMessageText = lastMessageText.String
		}
		chat.LastMessageTime = lastMessageTime
		chat.UnreadCount = unreadCount

		// Получаем данные о другом участнике чата (не текущем пользователе)
		if chat.BuyerID == userUUID {
			chat.Seller = getUserInfo(ctx, chat.SellerID)
		} else {
			chat.Buyer = getUserInfo(ctx, chat.BuyerID)
		}

		// Если чат привязан к объявлению, получаем его краткую карточку
		if chat.AdID != nil {
			chat.Ad = getAdInfo(ctx, *chat.AdID)
		}

		chats = append(chats, chat)
	}

	return c.JSON(fiber.Map{
		"chats": chats,
		"count": len(chats),
	})
}

// GetChatMessages возвращает сообщения конкретного чата
func (s *ChatService) GetChatMessages(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	chatID := c.Params("id")

	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Преобразуем ID в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	chatUUID, err := uuid.Parse(chatID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID чата"})
	}

	// Проверяем, имеет ли пользователь доступ к этому чату
	ctx, cancel := db.GetContext()
	defer cancel()

	var count int
	err = db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM chats
		WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2)
	`, chatUUID, userUUID).Scan(&count)

	if err != nil {
		log.Printf("Ошибка проверки доступа к чату: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки доступа к чату"})
	}

	if count == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этому чату"})
	}

	// Получаем сообщения
	limit := 50 // Ограничение количества сообщений

	// Обрабатываем пагинацию
	before := c.Query("before")
	var query string
	var queryArgs []interface{}

	if before != "" {
		beforeUUID, err := uuid.Parse(before)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID сообщения"})
		}

		query = `
			SELECT m.id, m.chat_id, m.sender_id, m.text, m.is_read, m.created_at, m.updated_at
			FROM messages m
			WHERE m.chat_id = $1 AND m.created_at < (SELECT created_at FROM messages WHERE id = $2)
			ORDER BY m.created_at DESC
			LIMIT $3
		`
		queryArgs = []interface{}{chatUUID, beforeUUID, limit}
	} else {
		query = `
			SELECT m.id, m.chat_id, m.sender_id, m.text, m.is_read, m.created_at, m.updated_at
			FROM messages m
			WHERE m.chat_id = $1
			ORDER BY m.created_at DESC
			LIMIT $2
		`
		queryArgs = []interface{}{chatUUID, limit}
	}

	rows, err := db.Pool.Query(ctx, query, queryArgs...)
	if err != nil {
		log.Printf("Ошибка запроса сообщений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения сообщений"})
	}
	defer rows.Close()

	// Обрабатываем результаты
	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.SenderID,
			&msg.Text,
			&msg.IsRead,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		); err != nil {
			log.Printf("Ошибка сканирования сообщения: %v", err)
			continue
		}

		// Добавляем информацию об отправителе
		msg.Sender = getUserInfo(ctx, msg.SenderID)
		messages = append(messages, msg)
	}
	rows.Close()

	// Отмечаем сообщения как прочитанные
	_, err = db.Pool.Exec(ctx, `
		UPDATE messages
		SET is_read = true
		WHERE chat_id = $1 AND sender_id != $2 AND is_read = false
	`, chatUUID, userUUID)

	if err != nil {
		log.Printf("Ошибка обновления статуса прочтения: %v", err)
		// Не возвращаем ошибку, т.к. основная функциональность выполнена
	}

	return c.JSON(fiber.Map{
		"messages": messages,
		"has_more": len(messages) == limit,
	})
}

// SendMessage отправляет новое сообщение
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	chatID := c.Params("id")

	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Преобразуем ID в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	chatUUID, err := uuid.Parse(chatID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID чата"})
	}

	// Получаем данные запроса
	var requestData struct {
		Text string `json:"text"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка чтения тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if requestData.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Текст сообщения не может быть пустым"})
	}

	// Проверяем, имеет ли пользователь доступ к этому чату
	ctx, cancel := db.GetContext()
	defer cancel()

	var chat models.Chat
	err = db.Pool.QueryRow(ctx, `
		SELECT id, buyer_id, seller_id, is_active FROM chats
		WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2)
	`, chatUUID, userUUID).Scan(&chat.ID, &chat.BuyerID, &chat.SellerID, &chat.IsActive)

	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этому чату"})
		}
		log.Printf("Ошибка проверки доступа к чату: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки доступа к чату"})
	}

	if !chat.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Чат неактивен"})
	}

	// Начинаем транзакцию
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	// Создаем новое сообщение
	messageID := uuid.New()
	now := time.Now()

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, text, is_read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, messageID, chatUUID, userUUID, requestData.Text, false, now, now)

	if err != nil {
		log.Printf("Ошибка создания сообщения: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения сообщения"})
	}

	// Обновляем информацию о чате
	_, err = tx.Exec(ctx, `
		UPDATE chats
		SET last_message_text = $1, last_message_time = $2, updated_at = $3
		WHERE id = $4
	`, requestData.Text, now, now, chatUUID)

	if err != nil {
		log.Printf("Ошибка обновления информации о чате: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления информации о чате"})
	}

	// Фиксируем транзакцию
	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	// Создаем объект сообщения для ответа
	message := models.Message{
		ID:        messageID,
		ChatID:    chatUUID,
		SenderID:  userUUID,
		Text:      requestData.Text,
		IsRead:    false,
		CreatedAt: now,
		UpdatedAt: now,
		Sender:    getUserInfo(ctx, userUUID),
	}

	// Уведомляем второго участника чата по WebSocket
	recipientID := chat.SellerID
	if userUUID == chat.SellerID {
		recipientID = chat.BuyerID
	}

	if payload, err := json.Marshal(message); err == nil {
		s.wsManager.SendToUser(recipientID.String(), ws.Event{
			Type:      ws.EventNewMessage,
			ChatID:    chatUUID.String(),
			MessageID: messageID.String(),
			UserID:    userUUID.String(),
			Timestamp: now,
			Payload:   payload,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": message,
		"success": true,
	})
}

// CreateChat открывает чат с продавцом по объявлению.
// На пару (объявление, покупатель) существует не более одного чата.
func (s *ChatService) CreateChat(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Получаем данные запроса
	var requestData struct {
		AdID    string `json:"ad_id"`
		Message string `json:"message,omitempty"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка чтения тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	if requestData.AdID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ID объявления не указан"})
	}

	// Преобразуем ID в UUID
	buyerUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	adUUID, err := uuid.Parse(requestData.AdID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	// Находим продавца по объявлению
	ctx, cancel := db.GetContext()
	defer cancel()

	var sellerUUID uuid.UUID
	err = db.Pool.QueryRow(ctx, `
		SELECT user_id FROM ads WHERE id = $1 AND status = 'active'
	`, adUUID).Scan(&sellerUUID)

	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено или не активно"})
		}
		log.Printf("Ошибка поиска объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки объявления"})
	}

	// Проверяем, что пользователь не открывает чат по своему объявлению
	if buyerUUID == sellerUUID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нельзя открыть чат по своему объявлению"})
	}

	// Проверяем, существует ли уже чат по этому объявлению
	var existingChatID *uuid.UUID
	err = db.Pool.QueryRow(ctx, `
		SELECT id FROM chats WHERE ad_id = $1 AND buyer_id = $2
	`, adUUID, buyerUUID).Scan(&existingChatID)

	if err != nil && err != pgx.ErrNoRows {
		log.Printf("Ошибка проверки существующего чата: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки существования чата"})
	}

	// Если чат существует, возвращаем его ID
	if existingChatID != nil {
		// Если указано сообщение, отправляем его в существующий чат
		if requestData.Message != "" {
			if err := s.appendMessage(ctx, *existingChatID, buyerUUID, requestData.Message); err != nil {
				log.Printf("Ошибка отправки сообщения: %v", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения сообщения"})
			}
		}

		return c.JSON(fiber.Map{
			"chat_id": existingChatID,
			"is_new":  false,
			"success": true,
		})
	}

	// Начинаем транзакцию
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	// Создаем новый чат
	chatID := uuid.New()
	now := time.Now()

	_, err = tx.Exec(ctx, `
		INSERT INTO chats (id, ad_id, buyer_id, seller_id, created_at, updated_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, chatID, adUUID, buyerUUID, sellerUUID, now, now, true)

	if err != nil {
		log.Printf("Ошибка создания чата: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка создания чата"})
	}

	// Если указано начальное сообщение, создаем его
	if requestData.Message != "" {
		messageID := uuid.New()

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, chat_id, sender_id, text, is_read, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, messageID, chatID, buyerUUID, requestData.Message, false, now, now)

		if err != nil {
			log.Printf("Ошибка создания сообщения: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения сообщения"})
		}

		// Обновляем информацию о чате
		_, err = tx.Exec(ctx, `
			UPDATE chats
			SET last_message_text = $1, last_message_time = $2
			WHERE id = $3
		`, requestData.Message, now, chatID)

		if err != nil {
			log.Printf("Ошибка обновления информации о чате: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления информации о чате"})
		}
	}

	// Фиксируем транзакцию
	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"chat_id": chatID,
		"is_new":  true,
		"success": true,
	})
}

// appendMessage добавляет сообщение в существующий чат
func (s *ChatService) appendMessage(ctx context.Context, chatID, senderID uuid.UUID, text string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	messageID := uuid.New()

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, text, is_read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, messageID, chatID, senderID, text, false, now, now)

	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE chats
		SET last_message_text = $1, last_message_time = $2, updated_at = $3
		WHERE id = $4
	`, text, now, now, chatID)

	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// PeerOf возвращает ID второго участника чата. Используется WebSocket-слоем
// для ретрансляции событий о наборе текста и прочтении.
func PeerOf(chatID, userID string) (string, error) {
	chatUUID, err := uuid.Parse(chatID)
	if err != nil {
		return "", err
	}

	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return "", err
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	var buyerID, sellerID uuid.UUID
	err = db.Pool.QueryRow(ctx, `
		SELECT buyer_id, seller_id FROM chats
		WHERE id = $1 AND (buyer_id = $2 OR seller_id = $2)
	`, chatUUID, userUUID).Scan(&buyerID, &sellerID)

	if err != nil {
		return "", err
	}

	if buyerID == userUUID {
		return sellerID.String(), nil
	}
	return buyerID.String(), nil
}

// getUserInfo получает базовую информацию о пользователе
func getUserInfo(ctx context.Context, userID uuid.UUID) *models.UserProfile {
	var user models.UserProfile
	var name, avatarURL pgtype.Text

	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, name, avatar_url
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.Email,
		&name,
		&avatarURL,
	)

	if err != nil {
		log.Printf("Ошибка получения данных пользователя %s: %v", userID, err)
		return nil
	}

	if name.Valid {
		user.Name = name.String
	}
	if avatarURL.Valid {
		user.AvatarURL = avatarURL.String
	}

	return &user
}

// getAdInfo получает краткую карточку объявления для списка чатов
func getAdInfo(ctx context.Context, adID uuid.UUID) *models.Ad {
	var ad models.Ad
	var currency pgtype.Text

	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, ad_type, title, status, price, currency
		FROM ads
		WHERE id = $1
	`, adID).Scan(
		&ad.ID,
		&ad.UserID,
		&ad.AdType,
		&ad.Title,
		&ad.Status,
		&ad.Price,
		&currency,
	)

	if err != nil {
		log.Printf("Ошибка получения данных объявления %s: %v", adID, err)
		return nil
	}

	if currency.Valid {
		ad.Currency = currency.String
	}

	return &ad
}
