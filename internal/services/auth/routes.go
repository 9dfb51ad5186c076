package auth

import (
	"github.com/gofiber/fiber/v3"
	"github.com/wafferli/wafferli-api/internal/middleware"
)

// SetupRoutes регистрирует маршруты в Fiber
func (s *AuthService) SetupRoutes(app *fiber.App) {
	app.Post("/api/auth/register", s.RegisterHandler)
	app.Post("/api/auth/login", s.LoginHandler)

	// Защищенные маршруты
	protected := app.Group("/api/auth")
	protected.Use(middleware.AuthMiddleware(s.jwtService))

	// Эндпоинт профиля текущего пользователя
	protected.Get("/me", s.MeHandler)
}
