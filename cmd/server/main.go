package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"spotalert/internal/api"
	"spotalert/internal/config"
	"spotalert/internal/discord"
	"spotalert/internal/engine"
	"spotalert/internal/exchange"
	"spotalert/internal/repository"
	"spotalert/internal/service"
	"spotalert/internal/websocket"
	"spotalert/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера (до остальных компонентов)
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer func() { _ = logger.Sync() }()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := repository.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}
	utils.Info("Connected to database",
		utils.String("host", cfg.Database.Host), utils.String("db", cfg.Database.Name))

	txm := repository.NewTxManager(db)

	// Клиенты бирж для движка матчинга
	exchanges := make(map[string]exchange.Exchange, len(exchange.SupportedExchanges))
	for _, name := range exchange.SupportedExchanges {
		ex, err := exchange.NewExchange(name)
		if err != nil {
			log.Fatalf("Failed to create exchange client %q: %v", name, err)
		}
		exchanges[name] = ex
	}

	// Discord-клиент доставки уведомлений
	sender := discord.NewClient(cfg.Discord.Token)

	// WebSocket hub операционных событий
	hub := websocket.NewHub()
	go hub.Run()

	// Сервисы
	delivery := service.NewDeliveryService(cfg.Delivery, txm, sender, logger)
	delivery.SetBroadcaster(hub)

	alerts := service.NewAlertService(txm, logger)
	alerts.SetNotifier(delivery)

	settings := service.NewSettingsService(txm, logger)

	matcher := engine.NewMatcher(cfg.Engine, txm, exchanges, logger)
	matcher.SetNotifier(delivery)
	matcher.SetBroadcaster(hub)

	// HTTP роутер и сервер
	router := api.SetupRoutes(&api.Dependencies{
		AlertService:    alerts,
		DeliveryService: delivery,
		SettingsService: settings,
		AdminTokenHash:  cfg.Security.AdminTokenHash,
		Hub:             hub,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Фоновые циклы: движок матчинга и доставка
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := matcher.Run(ctx); err != nil && err != context.Canceled {
			utils.Error("Matcher stopped", utils.Err(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := delivery.Run(ctx); err != nil && err != context.Canceled {
			utils.Error("Delivery stopped", utils.Err(err))
		}
	}()

	// Запуск сервера в отдельной горутине
	go func() {
		utils.Info("Starting server", utils.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	stop()

	utils.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.Error("Server forced to shutdown", utils.Err(err))
	}

	// Ждем завершения фоновых циклов, затем закрываем Discord-клиент
	wg.Wait()
	if err := sender.Close(); err != nil {
		utils.Error("Error closing Discord client", utils.Err(err))
	}

	utils.Info("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
