package cloudinary

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для работы с загрузкой изображений
func SetupRoutes(app *fiber.App, authMiddleware fiber.Handler, service *CloudinaryService) {
	// Группа для API загрузки
	api := app.Group("/api/upload")

	// Защищенные маршруты
	api.Use(authMiddleware)

	// Маршрут для получения параметров загрузки
	api.Get("/params", service.GenerateUploadParams)
}
