package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat представляет переписку покупателя и продавца по объявлению
type Chat struct {
	ID              uuid.UUID  `json:"id"`
	AdID            *uuid.UUID `json:"ad_id,omitempty"`
	BuyerID         uuid.UUID  `json:"buyer_id"`
	SellerID        uuid.UUID  `json:"seller_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	IsActive        bool       `json:"is_active"`

	// Дополнительные поля для API
	Buyer       *UserProfile `json:"buyer,omitempty"`
	Seller      *UserProfile `json:"seller,omitempty"`
	Ad          *Ad          `json:"ad,omitempty"`
	UnreadCount int          `json:"unread_count,omitempty"`
}

// Message представляет сообщение в чате
type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Дополнительные поля для API
	Sender *UserProfile `json:"sender,omitempty"`
}
