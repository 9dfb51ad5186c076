package ad

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wafferli/wafferli-api/internal/db"
	"github.com/wafferli/wafferli-api/internal/models"
)

// adColumns — общий список колонок объявления для запросов.
// Последние две колонки вычисляются относительно пользователя $1.
const adColumns = `
	a.id, a.user_id, a.ad_type, a.title, a.description, a.category, a.status,
	a.price, a.currency, a.discount_percent, a.start_date, a.end_date, a.service_area,
	a.created_at, a.updated_at,
	(SELECT COUNT(*) FROM favorites f WHERE f.ad_id = a.id) AS favorites_count,
	EXISTS(SELECT 1 FROM favorites f WHERE f.ad_id = a.id AND f.user_id = $1) AS is_favorited
`

// scanAd сканирует строку объявления с учетом nullable полей
func scanAd(rows pgx.Row) (models.Ad, error) {
	var ad models.Ad
	var currency, serviceArea pgtype.Text

	err := rows.Scan(
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
		&ad.IsFavorited,
	)

	if err != nil {
		return ad, err
	}

	// Преобразуем nullable поля
	if currency.Valid {
		ad.Currency = currency.String
	}
	if serviceArea.Valid {
		ad.ServiceArea = serviceArea.String
	}

	return ad, nil
}

// loadAdImages получает изображения объявления
func loadAdImages(ctx context.Context, adID uuid.UUID) []models.AdImage {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, ad_id, url, preview_url, public_id, file_name, is_main, position, metadata, created_at
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
		var metadataBytes []byte

		if err := rows.Scan(
			&img.ID,
			&img.AdID,
			&img.URL,
			&previewURL,
			&img.PublicID,
			&fileName,
			&img.IsMain,
			&img.Position,
			&metadataBytes,
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

		// Преобразуем метаданные из JSON, если они есть
		if metadataBytes != nil {
			if err := json.Unmarshal(metadataBytes, &img.Metadata); err != nil {
				log.Printf("Ошибка разбора метаданных: %v", err)
			}
		}

		images = append(images, img)
	}

	return images
}

// GetMyAds возвращает список объявлений текущего пользователя
func (s *AdService) GetMyAds(c fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	// Преобразуем userID в UUID
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Параметры фильтрации и пагинации
	status := c.Query("status", "all") // all, active, draft
	limit := 20                        // По умолчанию показываем 20 объявлений
	offsetStr := c.Query("offset", "0")
	offset, _ := strconv.Atoi(offsetStr)

	// Получаем объявления из базы данных
	ctx, cancel := db.GetContext()
	defer cancel()

	var rows pgx.Rows
	var queryErr error

	if status == "all" {
		rows, queryErr = db.Pool.Query(ctx, `
			SELECT `+adColumns+`
			FROM ads a
			WHERE a.user_id = $1
			ORDER BY a.updated_at DESC
			LIMIT $2 OFFSET $3
		`, userUUID, limit, offset)
	} else {
		rows, queryErr = db.Pool.Query(ctx, `
			SELECT `+adColumns+`
			FROM ads a
			WHERE a.user_id = $1 AND a.status = $2
			ORDER BY a.updated_at DESC
			LIMIT $3 OFFSET $4
		`, userUUID, status, limit, offset)
	}

	if queryErr != nil {
		log.Printf("Ошибка запроса объявлений: %v", queryErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявлений"})
	}
	defer rows.Close()

	// Обрабатываем результаты
	var ads []models.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			log.Printf("Ошибка сканирования строки: %v", err)
			continue
		}
		ads = append(ads, ad)
	}
	rows.Close()

	for i := range ads {
		ads[i].Images = loadAdImages(ctx, ads[i].ID)
	}

	// Получаем общее количество объявлений для пагинации
	var total int
	var countErr error

	if status == "all" {
		countErr = db.Pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM ads WHERE user_id = $1
		`, userUUID).Scan(&total)
	} else {
		countErr = db.Pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM ads WHERE user_id = $1 AND status = $2
		`, userUUID, status).Scan(&total)
	}

	if countErr != nil {
		log.Printf("Ошибка подсчета объявлений: %v", countErr)
		// Игнорируем ошибку, просто не вернем общее количество
	}

	return c.JSON(fiber.Map{
		"ads":    ads,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetAd возвращает детальную информацию об объявлении
func (s *AdService) GetAd(c fiber.Ctx) error {
	adID := c.Params("id")
	if adID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ID объявления не указан"})
	}

	// Проверяем, что ID является валидным UUID
	adUUID, err := uuid.Parse(adID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	// Получаем текущего пользователя
	userIDStr := c.Locals("userID").(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID пользователя"})
	}

	// Получаем объявление из базы данных
	ctx, cancel := db.GetContext()
	defer cancel()

	ad, err := scanAd(db.Pool.QueryRow(ctx, `
		SELECT `+adColumns+`
		FROM ads a
		WHERE a.id = $2
	`, userID, adUUID))

	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		log.Printf("Ошибка получения объявления: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявления"})
	}

	// Проверка доступа: черновик может видеть только автор
	if ad.Status == "draft" && ad.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этому объявлению"})
	}

	ad.Images = loadAdImages(ctx, ad.ID)

	// Получаем информацию о продавце
	var seller struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		AvatarURL string    `json:"avatar_url"`
	}

	var name, avatarURL pgtype.Text
	err = db.Pool.QueryRow(ctx, `
		SELECT id, name, avatar_url
		FROM users
		WHERE id = $1
	`, ad.UserID).Scan(&seller.ID, &name, &avatarURL)

	if err != nil && err != pgx.ErrNoRows {
		log.Printf("Ошибка получения данных пользователя: %v", err)
	}
	if name.Valid {
		seller.Name = name.String
	}
	if avatarURL.Valid {
		seller.AvatarURL = avatarURL.String
	}

	// Формируем ответ
	return c.JSON(fiber.Map{
		"ad":       ad,
		"seller":   seller,
		"is_owner": ad.UserID == userID,
	})
}

// publicAdsFilter строит условия фильтрации публичной выдачи.
// argPos — номер первого свободного плейсхолдера в итоговом запросе.
func publicAdsFilter(adType, category string, argPos int) (string, []interface{}) {
	var clause string
	var args []interface{}

	if adType != "" {
		clause += ` AND a.ad_type = $` + strconv.Itoa(argPos)
		args = append(args, adType)
		argPos++
	}
	if category != "" {
		clause += ` AND a.category = $` + strconv.Itoa(argPos)
		args = append(args, category)
		argPos++
	}

	return clause, args
}

// GetPublicAds возвращает список публичных активных объявлений с пагинацией
func (s *AdService) GetPublicAds(c fiber.Ctx) error {
	// Параметры фильтрации и пагинации
	adType := c.Query("type", "")
	category := c.Query("category", "")
	limit := 20 // По умолчанию показываем 20 объявлений
	offsetStr := c.Query("offset", "0")
	offset, _ := strconv.Atoi(offsetStr)

	// Получаем объявления из базы данных
	ctx, cancel := db.GetContext()
	defer cancel()

	// Для анонимного запроса is_favorited всегда false
	filter, filterArgs := publicAdsFilter(adType, category, 2)
	query := `
		SELECT ` + adColumns + `
		FROM ads a
		WHERE a.status = 'active'
	` + filter

	args := append([]interface{}{uuid.Nil}, filterArgs...)
	argPos := 2 + len(filterArgs)

	query += ` ORDER BY a.created_at DESC LIMIT $` + strconv.Itoa(argPos) +
		` OFFSET $` + strconv.Itoa(argPos+1)
	args = append(args, limit, offset)

	rows, queryErr := db.Pool.Query(ctx, query, args...)
	if queryErr != nil {
		log.Printf("Ошибка запроса объявлений: %v", queryErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявлений"})
	}
	defer rows.Close()

	// Обрабатываем результаты
	var ads []models.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			log.Printf("Ошибка сканирования строки: %v", err)
			continue
		}
		ads = append(ads, ad)
	}
	rows.Close()

	for i := range ads {
		ads[i].Images = loadAdImages(ctx, ads[i].ID)
	}

	// Общее количество считаем по тем же фильтрам, что и страницу
	countFilter, countArgs := publicAdsFilter(adType, category, 1)
	var total int
	countErr := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ads a WHERE a.status = 'active'
	`+countFilter, countArgs...).Scan(&total)

	if countErr != nil {
		log.Printf("Ошибка подсчета объявлений: %v", countErr)
		// Игнорируем ошибку, просто не вернем общее количество
	}

	return c.JSON(fiber.Map{
		"ads":    ads,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// SuggestAds возвращает подсказки поиска по названиям активных объявлений
func (s *AdService) SuggestAds(c fiber.Ctx) error {
	query := c.Query("q", "")
	if query == "" {
		return c.JSON(fiber.Map{"suggestions": []models.Suggestion{}})
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	rows, err := db.Pool.Query(ctx, `
		SELECT id, title, ad_type
		FROM ads
		WHERE status = 'active' AND title ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT 8
	`, query)

	if err != nil {
		log.Printf("Ошибка запроса подсказок: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения подсказок"})
	}
	defer rows.Close()

	suggestions := []models.Suggestion{}
	for rows.Next() {
		var s models.Suggestion
		if err := rows.Scan(&s.AdID, &s.Title, &s.AdType); err != nil {
			log.Printf("Ошибка сканирования строки: %v", err)
			continue
		}
		suggestions = append(suggestions, s)
	}

	return c.JSON(fiber.Map{
		"suggestions": suggestions,
	})
}
