package favorite

import (
	"context"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wafferli/wafferli-api/internal/config"
	"github.com/wafferli/wafferli-api/internal/db"
	"github.com/wafferli/wafferli-api/internal/models"
	"github.com/wafferli/wafferli-api/internal/utils"
)

// FavoriteService представляет сервис для работы с избранными объявлениями
type FavoriteService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
}

// NewFavoriteService создает новый экземпляр FavoriteService
func NewFavoriteService(cfg *config.Config) *FavoriteService {
	return &FavoriteService{
		cfg:        cfg,
		jwtService: utils.NewJWTService(cfg.JWTSecret),
	}
}

// ToggleFavorite переключает состояние избранного для объявления.
// Вставка или удаление выполняются в одной транзакции, итоговое состояние
// и счетчик возвращаются клиенту для сверки.
func (s *FavoriteService) ToggleFavorite(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Извлекаем ID объявления из запроса
	var requestData struct {
		AdID string `json:"ad_id"`
	}

	if err := c.Bind().Body(&requestData); err != nil {
		log.Printf("Ошибка декодирования тела запроса: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	// Проверяем, что ad_id указан
	if requestData.AdID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ID объявления не указан"})
	}

	// Преобразуем строки в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	adUUID, err := uuid.Parse(requestData.AdID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	// Проверяем, существует ли объявление
	ctx, cancel := db.GetContext()
	defer cancel()

	var exists bool
	err = db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ads WHERE id = $1 AND status = 'active')
	`, adUUID).Scan(&exists)

	if err != nil {
		log.Printf("Ошибка проверки существования объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки объявления"})
	}

	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено или не активно"})
	}

	// Переключаем состояние в одной транзакции
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Ошибка начала транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}
	defer tx.Rollback(ctx)

	var isFavorited bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = $1 AND ad_id = $2)
	`, userUUID, adUUID).Scan(&isFavorited)

	if err != nil {
		log.Printf("Ошибка проверки избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки избранного"})
	}

	if isFavorited {
		_, err = tx.Exec(ctx, `
			DELETE FROM favorites WHERE user_id = $1 AND ad_id = $2
		`, userUUID, adUUID)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO favorites (id, user_id, ad_id)
			VALUES ($1, $2, $3)
		`, uuid.New(), userUUID, adUUID)
	}

	if err != nil {
		log.Printf("Ошибка переключения избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления избранного"})
	}

	// Считаем итоговое количество в той же транзакции
	var count int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM favorites WHERE ad_id = $1
	`, adUUID).Scan(&count)

	if err != nil {
		log.Printf("Ошибка подсчета избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления избранного"})
	}

	if err = tx.Commit(ctx); err != nil {
		log.Printf("Ошибка фиксации транзакции: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка базы данных"})
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"is_favorited":    !isFavorited,
		"favorites_count": count,
	})
}

// GetFavorites возвращает список избранных объявлений пользователя
func (s *FavoriteService) GetFavorites(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Преобразуем userID в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Параметры пагинации
	limit := 20 // По умолчанию показываем 20 объявлений
	offsetStr := c.Query("offset", "0")
	offset, _ := strconv.Atoi(offsetStr)

	// Получаем избранные объявления из базы данных
	ctx, cancel := db.GetContext()
	defer cancel()

	// Запрос избранного вместе с данными объявлений
	query := `
		SELECT f.id, f.user_id, f.ad_id, f.created_at,
			   a.id, a.user_id, a.ad_type, a.title, a.description, a.category, a.status,
			   a.price, a.currency, a.discount_percent, a.start_date, a.end_date, a.service_area,
			   a.created_at, a.updated_at,
			   (SELECT COUNT(*) FROM favorites ff WHERE ff.ad_id = a.id) AS favorites_count
		FROM favorites f
		JOIN ads a ON f.ad_id = a.id
		WHERE f.user_id = $1 AND a.status = 'active'
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := db.Pool.Query(ctx, query, userUUID, limit, offset)
	if err != nil {
		log.Printf("Ошибка запроса избранных объявлений: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения избранных объявлений"})
	}
	defer rows.Close()

	var favorites []models.Favorite
	for rows.Next() {
		var favorite models.Favorite
		var ad models.Ad
		var currency, serviceArea pgtype.Text

		if err := rows.Scan(
			&favorite.ID,
			&favorite.UserID,
			&favorite.AdID,
			&favorite.CreatedAt,
			&ad.ID,
			&ad.UserID,
			&ad.AdType,
			&ad.Title,
			&ad.Description,
			&ad.Category,
			&ad.Status,
			&ad.Price,
			&currency,
			&ad.DiscountPercent,
			&ad.StartDate,
			&ad.EndDate,
			&serviceArea,
			&ad.CreatedAt,
			&ad.UpdatedAt,
			&ad.FavoritesCount,
		); err != nil {
			log.Printf("Ошибка сканирования строки: %v", err)
			continue
		}

		if currency.Valid {
			ad.Currency = currency.String
		}
		if serviceArea.Valid {
			ad.ServiceArea = serviceArea.String
		}

		// Запись из избранного пользователя по определению избранна
		ad.IsFavorited = true

		favorite.Ad = &ad
		favorites = append(favorites, favorite)
	}
	rows.Close()

	for i := range favorites {
		favorites[i].Ad.Images = loadFavoriteImages(ctx, favorites[i].AdID)
	}

	// Получаем общее количество избранных объявлений для пагинации
	var total int
	err = db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM favorites f
		JOIN ads a ON f.ad_id = a.id
		WHERE f.user_id = $1 AND a.status = 'active'
	`, userUUID).Scan(&total)

	if err != nil {
		log.Printf("Ошибка подсчета избранных объявлений: %v", err)
		// Игнорируем ошибку, просто не вернем общее количество
	}

	return c.JSON(fiber.Map{
		"favorites": favorites,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// CheckFavorite проверяет, добавлено ли объявление в избранное
func (s *FavoriteService) CheckFavorite(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	adID := c.Params("id")

	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	if adID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ID объявления не указан"})
	}

	// Преобразуем строки в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	adUUID, err := uuid.Parse(adID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	// Проверяем, есть ли объявление в избранном
	ctx, cancel := db.GetContext()
	defer cancel()

	var favoriteID uuid.UUID
	err = db.Pool.QueryRow(ctx, `
		SELECT id FROM favorites WHERE user_id = $1 AND ad_id = $2
	`, userUUID, adUUID).Scan(&favoriteID)

	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(fiber.Map{
				"is_favorited": false,
			})
		}
		log.Printf("Ошибка проверки избранного: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки избранного"})
	}

	return c.JSON(fiber.Map{
		"is_favorited": true,
		"favorite_id":  favoriteID,
	})
}

// loadFavoriteImages получает изображения объявления для карточки избранного
func loadFavoriteImages(ctx context.Context, adID uuid.UUID) []models.AdImage {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, ad_id, url, preview_url, public_id, file_name, is_main, position, created_at
		FROM ad_images
		WHERE ad_id = $1
		ORDER BY position ASC
	`, adID)

	if err != nil {
		log.Printf("Ошибка запроса изображений: %v", err)
		return nil
	}
	defer rows.Close()

	var images []models.AdImage
	for rows.Next() {
		var img models.AdImage
		var previewURL, fileName pgtype.Text

		if err := rows.Scan(
			&img.ID,
			&img.AdID,
			&img.URL,
			&previewURL,
			&img.PublicID,
			&fileName,
			&img.IsMain,
			&img.Position,
			&img.CreatedAt,
		); err != nil {
			log.Printf("Ошибка сканирования изображения: %v", err)
			continue
		}

		if previewURL.Valid {
			img.PreviewURL = previewURL.String
		}
		if fileName.Valid {
			img.FileName = fileName.String
		}

		images = append(images, img)
	}

	return images
}
