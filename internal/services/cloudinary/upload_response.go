package cloudinary

import (
	"time"

	"github.com/wafferli/wafferli-api/internal/models"
)

// UploadResponse представляет ответ Cloudinary API после прямой загрузки
type UploadResponse struct {
	AssetID          string    `json:"asset_id"`
	PublicID         string    `json:"public_id"`
	Version          int       `json:"version"`
	Signature        string    `json:"signature"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Format           string    `json:"format"`
	ResourceType     string    `json:"resource_type"`
	CreatedAt        time.Time `json:"created_at"`
	Bytes            int       `json:"bytes"`
	URL              string    `json:"url"`
	SecureURL        string    `json:"secure_url"`
	AssetFolder      string    `json:"asset_folder"`
	DisplayName      string    `json:"display_name"`
	OriginalFilename string    `json:"original_filename"`
	Eager            []Eager   `json:"eager"`
}

// Eager содержит информацию о трансформациях изображения
type Eager struct {
	Status    string `json:"status"`
	BatchID   string `json:"batch_id"`
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
}

// Metadata извлекает основные метаданные из ответа Cloudinary
func (r UploadResponse) Metadata() models.ImageMetadata {
	return models.ImageMetadata{
		AssetID:   r.AssetID,
		PublicID:  r.PublicID,
		Width:     r.Width,
		Height:    r.Height,
		CreatedAt: r.CreatedAt,
		Bytes:     r.Bytes,
	}
}

// PreviewURL извлекает URL превью из ответа Cloudinary
func (r UploadResponse) PreviewURL() string {
	for _, eager := range r.Eager {
		if eager.Status == "processing" || eager.Status == "completed" {
			return eager.SecureURL
		}
	}
	return ""
}
