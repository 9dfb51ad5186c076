package models

import (
	"time"

	"github.com/google/uuid"
)

// Favorite представляет запись избранного объявления
type Favorite struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	AdID      uuid.UUID `json:"ad_id"`
	CreatedAt time.Time `json:"created_at"`

	// Дополнительные поля для API
	Ad *Ad `json:"ad,omitempty"`
}

// FavoriteResponse представляет структуру ответа API с избранными объявлениями
type FavoriteResponse struct {
	Favorites []Favorite `json:"favorites"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

// FavoriteState представляет состояние избранного после переключения
type FavoriteState struct {
	IsFavorited    bool `json:"is_favorited"`
	FavoritesCount int  `json:"favorites_count"`
}
