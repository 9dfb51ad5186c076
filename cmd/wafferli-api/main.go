package main

import (
	"log"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/wafferli/wafferli-api/internal/config"
	"github.com/wafferli/wafferli-api/internal/db"
	"github.com/wafferli/wafferli-api/internal/middleware"
	"github.com/wafferli/wafferli-api/internal/services/ad"
	"github.com/wafferli/wafferli-api/internal/services/auth"
	"github.com/wafferli/wafferli-api/internal/services/chat"
	"github.com/wafferli/wafferli-api/internal/services/cloudinary"
	"github.com/wafferli/wafferli-api/internal/services/favorite"
	ws "github.com/wafferli/wafferli-api/internal/websocket"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	// Инициализируем базу данных
	if err := db.InitDB(cfg); err != nil {
		log.Fatalf("❌ Ошибка при инициализации базы данных: %v", err)
	}
	defer db.CloseDB()

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "Wafferli API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// Создаём сервисы
	authService := auth.NewAuthService(cfg)

	cloudinaryService, err := cloudinary.NewCloudinaryService(cfg)
	if err != nil {
		log.Fatalf("❌ Ошибка при инициализации Cloudinary: %v", err)
	}

	wsManager := ws.NewManager()
	defer wsManager.Shutdown()

	adService := ad.NewAdService(cfg, cloudinaryService)
	favoriteService := favorite.NewFavoriteService(cfg)
	chatService := chat.NewChatService(cfg, wsManager)

	// Настраиваем middleware для аутентификации
	authMiddleware := middleware.AuthMiddleware(authService.GetJWTService())

	// Регистрируем маршруты
	authService.SetupRoutes(app)
	adService.SetupRoutes(app)
	favoriteService.SetupRoutes(app)
	chatService.SetupRoutes(app)
	cloudinary.SetupRoutes(app, authMiddleware, cloudinaryService)

	// WebSocket живет на отдельном порту: gorilla/websocket работает
	// поверх net/http, а не fasthttp
	go func() {
		wsMux := http.NewServeMux()
		wsMux.HandleFunc("/ws", ws.Handler(wsManager, authService.GetJWTService(), chat.PeerOf))

		log.Println("✅ WebSocket сервер запущен на порту 8081")
		if err := http.ListenAndServe(":8081", wsMux); err != nil {
			log.Printf("❌ Ошибка WebSocket сервера: %v", err)
		}
	}()

	// Запускаем сервер
	log.Printf("✅ Wafferli API запущен на порту %s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
