package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/config"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/handler"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/metrics"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/middleware"
	pgRepo "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/repository/postgres"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/service"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/wordpress"
	"github.com/ASAP-Digest/ASAP-Digest-sub012/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	userMapRepo := pgRepo.NewUserMapRepo(db)
	accountRepo := pgRepo.NewAccountRepo(db)
	sessionRepo, err := pgRepo.NewSessionRepo(db)
	if err != nil {
		log.Printf("Failed to initialize SessionRepo: %v", err)
		os.Exit(1)
	}

	// Метрики моста
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	isProduction := gin.Mode() == gin.ReleaseMode

	// Инициализируем сервисы
	sessionService, err := service.NewSessionService(sessionRepo, userRepo, cfg.Session, isProduction)
	if err != nil {
		log.Printf("Failed to initialize SessionService: %v", err)
		os.Exit(1)
	}

	wpClient, err := wordpress.NewClient(cfg.WordPress)
	if err != nil {
		log.Printf("Failed to initialize WordPress client: %v", err)
		os.Exit(1)
	}
	notifier, err := wordpress.NewNotifier(cfg.WordPress)
	if err != nil {
		log.Printf("Failed to initialize WordPress notifier: %v", err)
		os.Exit(1)
	}

	syncService, err := service.NewSyncService(wpClient, userRepo, userMapRepo, accountRepo, sessionService, notifier, collector)
	if err != nil {
		log.Printf("Failed to initialize SyncService: %v", err)
		os.Exit(1)
	}

	// Контекст с отменой для корректного завершения фоновых горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Периодическая очистка истекших сессий (ленивое отклонение остается
	// основным механизмом; очистка лишь сдерживает рост таблицы)
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		log.Println("Запуск механизма периодической очистки истекших сессий (каждый час)")

		for {
			select {
			case <-ticker.C:
				deleted, err := sessionService.CleanupExpired()
				if err != nil {
					log.Printf("Ошибка при очистке сессий: %v", err)
				} else if deleted > 0 {
					log.Printf("Удалено истекших сессий: %d", deleted)
				}
			case <-ctx.Done():
				log.Println("Завершение работы горутины очистки сессий")
				return
			}
		}
	}()

	// Инициализируем обработчики и middleware
	authHandler := handler.NewAuthHandler(syncService, sessionService)
	sessionMiddleware := middleware.NewSessionMiddleware(sessionService)
	gateway := middleware.NewSecurityGateway(cfg.WordPress.SyncSecret, cfg.CORS.AllowedOrigin, collector)

	// Rate limiter опционален: без Redis верификация работает без лимитов
	var rateLimiter *middleware.RateLimiter
	if cfg.Redis.Addr != "" || len(cfg.Redis.Addrs) > 0 {
		redisClient, redisErr := database.NewUniversalRedisClient(cfg.Redis)
		if redisErr != nil {
			log.Printf("Redis недоступен, rate limiting отключен: %v", redisErr)
		} else {
			rateLimiter = middleware.NewRateLimiter(redisClient)
			log.Println("Successfully connected to Redis")
		}
	}

	// Инициализируем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Security gateway классифицирует все запросы моста. Регистрируется
	// строго до CORS: preflight кросс-доменного sync-пути обрабатывает сам
	// gateway, иначе глобальный CORS перехватит OPTIONS и не анонсирует
	// заголовок X-WP-Sync-Secret.
	router.Use(gateway.Handle())

	// CORS для фронтенда приложения (все пути, кроме уже обработанного
	// gateway'ем preflight sync-пути)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORS.AllowedOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.CSRFHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Маршруты моста синхронизации
	authGroup := router.Group("/auth")
	{
		verify := authGroup.Group("")
		if rateLimiter != nil {
			verify.Use(rateLimiter.Limit(middleware.VerifyRateLimitConfig()))
		}
		verify.POST("/verify-sync-token", authHandler.VerifySyncToken)

		authGroup.POST("/sync", authHandler.SyncUser)
		authGroup.GET("/session", authHandler.GetSession)
		authGroup.GET("/csrf", authHandler.GetCSRFToken)
		authGroup.POST("/logout", authHandler.Logout)

		// Маршруты, требующие валидной сессии
		authed := authGroup.Group("")
		authed.Use(sessionMiddleware.RequireSession())
		{
			authed.PUT("/profile", authHandler.UpdateProfile)
		}
	}

	// Метрики и health
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
