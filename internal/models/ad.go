package models

import (
	"time"

	"github.com/google/uuid"
)

// AdType определяет вертикаль объявления. Тип неизменяем после создания
// и определяет, какие из опциональных полей объявления осмысленны.
type AdType string

const (
	AdTypeProduct AdType = "product"
	AdTypeService AdType = "service"
	AdTypeEvent   AdType = "event"
	AdTypeOffer   AdType = "offer"
	AdTypeExplore AdType = "explore"
)

// Valid проверяет, что тип объявления известен системе
func (t AdType) Valid() bool {
	switch t {
	case AdTypeProduct, AdTypeService, AdTypeEvent, AdTypeOffer, AdTypeExplore:
		return true
	}
	return false
}

// HasPrice сообщает, несет ли данный тип объявления цену
func (t AdType) HasPrice() bool {
	return t == AdTypeProduct || t == AdTypeOffer || t == AdTypeExplore
}

// HasDates сообщает, несет ли данный тип объявления даты проведения
func (t AdType) HasDates() bool {
	return t == AdTypeEvent
}

// Ad представляет объявление в системе
type Ad struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	AdType      AdType    `json:"ad_type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`

	// Поля, осмысленные только для части типов (см. AdType)
	Price           *float64   `json:"price,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	DiscountPercent *int       `json:"discount_percent,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	ServiceArea     string     `json:"service_area,omitempty"`

	Images []AdImage `json:"images"`

	// Вычисляются относительно сессии запрашивающего
	IsFavorited    bool `json:"is_favorited"`
	FavoritesCount int  `json:"favorites_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdImage представляет изображение объявления
type AdImage struct {
	ID         uuid.UUID     `json:"id"`
	AdID       uuid.UUID     `json:"ad_id"`
	URL        string        `json:"url"`
	PreviewURL string        `json:"preview_url,omitempty"`
	PublicID   string        `json:"public_id"`
	FileName   string        `json:"file_name,omitempty"`
	IsMain     bool          `json:"is_main"`
	Position   int           `json:"position"`
	Metadata   ImageMetadata `json:"metadata,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ImageMetadata содержит ключевые метаданные изображения из Cloudinary
type ImageMetadata struct {
	AssetID   string    `json:"asset_id"`
	PublicID  string    `json:"public_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
	Bytes     int       `json:"bytes"`
}

// Suggestion представляет подсказку поиска
type Suggestion struct {
	AdID   uuid.UUID `json:"ad_id"`
	Title  string    `json:"title"`
	AdType AdType    `json:"ad_type"`
}

// AdListResponse представляет структуру ответа API со списком объявлений
type AdListResponse struct {
	Ads    []Ad `json:"ads"`
	Total  int  `json:"total"`
	Limit  int  `json:"limit"`
	Offset int  `json:"offset"`
}
