package ad

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wafferli/wafferli-api/internal/config"
	"github.com/wafferli/wafferli-api/internal/db"
	"github.com/wafferli/wafferli-api/internal/models"
	"github.com/wafferli/wafferli-api/internal/services/cloudinary"
	"github.com/wafferli/wafferli-api/internal/utils"
)

// RequestImage представляет структуру изображения в запросе создания объявления
type RequestImage struct {
	URL                string          `json:"url"`
	PublicID           string          `json:"public_id"`
	FileName           string          `json:"file_name"`
	IsMain             bool            `json:"is_main"`
	CloudinaryResponse json.RawMessage `json:"cloudinary_response,omitempty"`
}

// adRequest представляет тело запроса создания/обновления объявления
type adRequest struct {
	AdType          models.AdType  `json:"ad_type"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Category        string         `json:"category"`
	Status          string         `json:"status"`
	Price           *float64       `json:"price"`
	Currency        string         `json:"currency"`
	DiscountPercent *int           `json:"discount_percent"`
	StartDate       *time.Time     `json:"start_date"`
	EndDate         *time.Time     `json:"end_date"`
	ServiceArea     string         `json:"service_area"`
	Images          []RequestImage `json:"images"`
}

// AdService представляет сервис для работы с объявлениями
type AdService struct {
	cfg               *config.Config
	jwtService        *utils.JWTService
	cloudinaryService *cloudinary.CloudinaryService
}

// NewAdService создает новый экземпляр AdService
func NewAdService(cfg *config.Config, cloudinaryService *cloudinary.CloudinaryService) *AdService {
	return &AdService{
		cfg:               cfg,
		jwtService:        utils.NewJWTService(cfg.JWTSecret),
		cloudinaryService: cloudinaryService,
	}
}

// validateAdRequest проверяет тело запроса с учетом типа объявления.
// Возвращает текст ошибки или пустую строку, если запрос корректен.
func validateAdRequest(req *adRequest) string {
	if !req.AdType.Valid() {
		return "Неизвестный тип объявления"
	}

	if req.Title == "" {
		return "Название обязательно"
	}

	// Проверка валидности status
	if req.Status != "active" && req.Status != "draft" {
		req.Status = "draft" // По умолчанию - черновик
	}

	// Для активных объявлений требуем категорию и хотя бы одно изображение
	if req.Status == "active" {
		if req.Category == "" {
			return "Выберите категорию"
		}
		if len(req.Images) == 0 {
			return "Добавьте хотя бы одно изображение"
		}
	}

	// Поля, осмысленные только для части типов
	if req.AdType.HasPrice() {
		if req.Status == "active" && req.Price == nil {
			return "Укажите цену"
		}
		if req.Price != nil && *req.Price < 0 {
			return "Цена не может быть отрицательной"
		}
		if req.Currency == "" {
			req.Currency = "KWD"
		}
	} else {
		req.Price = nil
		req.Currency = ""
	}

	if req.AdType == models.AdTypeOffer && req.DiscountPercent != nil {
		if *req.DiscountPercent < 1 || *req.DiscountPercent > 99 {
			return "Скидка должна быть от 1 до 99 процентов"
		}
	} else if req.AdType != models.AdTypeOffer {
		req.DiscountPercent = nil
	}

	if req.AdType.HasDates() {
		if req.Status == "active" && req.StartDate == nil {
			return "Укажите дату начала события"
		}
		if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
			return "Дата окончания не может быть раньше даты начала"
		}
	} else {
		req.StartDate = nil
		req.EndDate = nil
	}

	if req.AdType != models.AdTypeService {
		req.ServiceArea = ""
	}

	return ""
}

// CreateAd обрабатывает создание нового объявления
func (s *AdService) CreateAd(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Преобразуем userID в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Извлекаем данные из запроса
	var requestData adRequest
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Валидация с учетом типа объявления
	if msg := validateAdRequest(&requestData); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	// Создаем ID для нового объявления
	adID := uuid.New()

	// Начинаем транзакцию
	ctx, cancel := db.GetContext()
	defer cancel()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	// Вставляем объявление
	_, err = tx.Exec(ctx, `
		INSERT INTO ads (id, user_id, ad_type, title, description, category, status,
						 price, currency, discount_percent, start_date, end_date, service_area)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, adID, userUUID, requestData.AdType, requestData.Title, requestData.Description,
		requestData.Category, requestData.Status, requestData.Price, nullableText(requestData.Currency),
		requestData.DiscountPercent, requestData.StartDate, requestData.EndDate, nullableText(requestData.ServiceArea))

	if err != nil {
		log.Printf("Ошибка вставки объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения объявления"})
	}

	// Вставляем изображения, если они есть
	if err := insertAdImages(ctx, tx, adID, requestData.Images); err != nil {
		log.Printf("Ошибка вставки изображения: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения изображений"})
	}

	// Фиксируем транзакцию
	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"ad_id":   adID,
		"message": "Объявление успешно создано",
	})
}

// insertAdImages вставляет изображения объявления внутри транзакции
func insertAdImages(ctx context.Context, tx pgx.Tx, adID uuid.UUID, images []RequestImage) error {
	for i, img := range images {
		isMain := i == 0 // Первое изображение - основное

		var cloudinaryResp cloudinary.UploadResponse
		var metadata []byte
		var previewURL string

		// Обрабатываем данные из Cloudinary
		if len(img.CloudinaryResponse) > 0 {
			if err := json.Unmarshal(img.CloudinaryResponse, &cloudinaryResp); err != nil {
				log.Printf("Ошибка парсинга ответа Cloudinary: %v", err)
			} else {
				// Извлекаем URL превью
				previewURL = cloudinaryResp.PreviewURL()

				// Формируем метаданные для сохранения
				metadataObj := cloudinaryResp.Metadata()
				metadata, _ = json.Marshal(metadataObj)
			}
		}

		// Вставляем информацию об изображении
		_, err := tx.Exec(ctx, `
			INSERT INTO ad_images (ad_id, url, preview_url, public_id, file_name, is_main, position, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, adID, img.URL, previewURL, img.PublicID, img.FileName, isMain, i, metadata)

		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateAd обновляет существующее объявление. Тип объявления неизменяем.
func (s *AdService) UpdateAd(c fiber.Ctx) error {
	adID := c.Params("id")
	userIDStr := c.Locals("userID").(string)

	if adID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ID объявления не указан"})
	}

	// Проверяем, что ID является валидным UUID
	adUUID, err := uuid.Parse(adID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Извлекаем данные из запроса
	var requestData adRequest
	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Проверяем, что объявление существует и принадлежит пользователю
	ctx, cancel := db.GetContext()
	defer cancel()

	var ownerID uuid.UUID
	var adType models.AdType
	err = db.Pool.QueryRow(ctx, "SELECT user_id, ad_type FROM ads WHERE id = $1", adUUID).Scan(&ownerID, &adType)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка запроса объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявления"})
	}

	// Проверка, что пользователь является владельцем объявления
	if ownerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к редактированию этого объявления"})
	}

	// Тип объявления менять нельзя
	if requestData.AdType != "" && requestData.AdType != adType {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Тип объявления нельзя изменить"})
	}
	requestData.AdType = adType

	// Валидация с учетом типа объявления
	if msg := validateAdRequest(&requestData); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	// Начинаем транзакцию
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	// Обновляем основную информацию объявления
	_, err = tx.Exec(ctx, `
		UPDATE ads
		SET title = $1, description = $2, category = $3, status = $4,
			price = $5, currency = $6, discount_percent = $7,
			start_date = $8, end_date = $9, service_area = $10, updated_at = NOW()
		WHERE id = $11
	`, requestData.Title, requestData.Description, requestData.Category, requestData.Status,
		requestData.Price, nullableText(requestData.Currency), requestData.DiscountPercent,
		requestData.StartDate, requestData.EndDate, nullableText(requestData.ServiceArea), adUUID)

	if err != nil {
		log.Printf("Ошибка обновления объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления объявления"})
	}

	// Если есть изображения, обновляем их
	if len(requestData.Images) > 0 {
		// Сначала удаляем все существующие изображения
		_, err = tx.Exec(ctx, "DELETE FROM ad_images WHERE ad_id = $1", adUUID)
		if err != nil {
			log.Printf("Ошибка удаления старых изображений: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления изображений"})
		}

		// Добавляем новые изображения
		if err := insertAdImages(ctx, tx, adUUID, requestData.Images); err != nil {
			log.Printf("Ошибка вставки изображения: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения изображений"})
		}
	}

	// Фиксируем транзакцию
	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"ad_id":   adID,
		"message": "Объявление успешно обновлено",
	})
}

// DeleteAd удаляет объявление вместе с изображениями и записями избранного
func (s *AdService) DeleteAd(c fiber.Ctx) error {
	adID := c.Params("id")
	userIDStr := c.Locals("userID").(string)

	if adID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ID объявления не указан"})
	}

	// Проверяем, что ID является валидным UUID
	adUUID, err := uuid.Parse(adID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Проверяем, что объявление существует и принадлежит пользователю
	ctx, cancel := db.GetContext()
	defer cancel()

	var ownerID uuid.UUID
	err = db.Pool.QueryRow(ctx, "SELECT user_id FROM ads WHERE id = $1", adUUID).Scan(&ownerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка запроса объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявления"})
	}

	// Проверка, что пользователь является владельцем объявления
	if ownerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к удалению этого объявления"})
	}

	// Собираем public_id изображений для последующей очистки CDN
	var publicIDs []string
	imgRows, err := db.Pool.Query(ctx, "SELECT public_id FROM ad_images WHERE ad_id = $1", adUUID)
	if err != nil {
		log.Printf("Ошибка запроса изображений: %v", err)
	} else {
		for imgRows.Next() {
			var publicID string
			if err := imgRows.Scan(&publicID); err == nil && publicID != "" {
				publicIDs = append(publicIDs, publicID)
			}
		}
		imgRows.Close()
	}

	// Начинаем транзакцию
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	// Сначала удаляем связанные записи избранного и изображения
	_, err = tx.Exec(ctx, "DELETE FROM favorites WHERE ad_id = $1", adUUID)
	if err != nil {
		log.Printf("Ошибка удаления записей избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления объявления"})
	}

	_, err = tx.Exec(ctx, "DELETE FROM ad_images WHERE ad_id = $1", adUUID)
	if err != nil {
		log.Printf("Ошибка удаления изображений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления объявления"})
	}

	// Удаляем само объявление
	_, err = tx.Exec(ctx, "DELETE FROM ads WHERE id = $1", adUUID)
	if err != nil {
		log.Printf("Ошибка удаления объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления объявления"})
	}

	// Фиксируем транзакцию
	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	// Чистим изображения в Cloudinary уже после фиксации: объявление удалено,
	// оставшиеся в CDN файлы не критичны
	if len(publicIDs) > 0 {
		go s.cloudinaryService.DestroyImages(context.Background(), publicIDs)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Объявление успешно удалено",
	})
}

// nullableText возвращает nil вместо пустой строки для nullable колонок
func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
