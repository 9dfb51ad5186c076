package ad

import (
	"github.com/gofiber/fiber/v3"
	"github.com/wafferli/wafferli-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для API объявлений
func (s *AdService) SetupRoutes(app *fiber.App) {
	// Публичные маршруты
	app.Get("/api/ads", s.GetPublicAds)
	app.Get("/api/ads/suggest", s.SuggestAds)

	// Группа для защищенных маршрутов (требуют авторизации)
	api := app.Group("/api/ads")
	api.Use(middleware.AuthMiddleware(s.jwtService))

	// Маршрут для создания объявления
	api.Post("/create", s.CreateAd)

	// Маршрут для получения списка своих объявлений
	api.Get("/my", s.GetMyAds)

	// Маршрут для получения одного объявления по ID
	api.Get("/:id", s.GetAd)

	// Маршрут для обновления объявления
	api.Put("/:id", s.UpdateAd)

	// Маршрут для удаления объявления
	api.Delete("/:id", s.DeleteAd)
}
