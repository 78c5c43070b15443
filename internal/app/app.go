package app

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/finvet-io/finvet/internal/cache"
	"github.com/finvet-io/finvet/internal/config"
	"github.com/finvet-io/finvet/internal/database"
	"github.com/finvet-io/finvet/internal/env"
	"github.com/finvet-io/finvet/internal/errHandler"
	"github.com/finvet-io/finvet/internal/file"
	"github.com/finvet-io/finvet/internal/helper"
	"github.com/finvet-io/finvet/internal/smtp"
	"github.com/finvet-io/finvet/internal/stream"
	"github.com/finvet-io/finvet/internal/sumsub"
	"github.com/joho/godotenv"
)

// Essential services and resources are exposed on the application
// so route handlers and workers can reach them when they need them.
type Application struct {
	Config       config.Config
	DB           *database.DB
	Logger       *slog.Logger
	Mailer       *smtp.Mailer
	WG           sync.WaitGroup
	ErrorHandler *errHandler.ErrorHandler
	Helper       *helper.HelperRepository
	Kafka        *stream.KafkaStream
	Cache        *cache.Cache
	Sumsub       *sumsub.Client
	FileUploader *file.FileUploader
}

func NewApplication(logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", "error", err)
	}

	var cfg config.Config

	// config values are loaded from the .env file.
	// Default values are strictly for development mode; the Sumsub
	// credentials deliberately default to empty so that signing and webhook
	// verification fail closed when they are not configured.
	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/db")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")

	// server errors won't be sent via email if NOTIFICATIONS_EMAIL wasn't set
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Finvet <no_reply@finvet.example>")

	cfg.Sumsub.BaseURL = env.GetString("SUMSUB_BASE_URL", "https://api.sumsub.com")
	cfg.Sumsub.AppToken = env.GetString("SUMSUB_APP_TOKEN", "")
	cfg.Sumsub.SecretKey = env.GetString("SUMSUB_SECRET_KEY", "")
	cfg.Sumsub.DefaultLevel = env.GetString("SUMSUB_DEFAULT_LEVEL", "id-and-liveness")

	cfg.RedisServer = env.GetString("REDIS_SERVER", "localhost:6379")
	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")

	cfg.FileUploader.ApiKey = env.GetString("CLOUDINARY_API_KEY", "")
	cfg.FileUploader.CloudName = env.GetString("CLOUDINARY_CLOUD_NAME", "")
	cfg.FileUploader.ApiSecret = env.GetString("CLOUDINARY_API_SECRET", "")

	db, err := database.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	app := &Application{
		Config: cfg,
		DB:     db,
		Logger: logger,
		Mailer: mailer,
	}

	app.ErrorHandler = errHandler.New(cfg.Notifications.Email, mailer, logger)
	app.Helper = helper.New(&app.Config.BaseURL, &app.WG, app.ErrorHandler)
	app.Kafka = stream.New(cfg.KafkaServers)
	app.Cache = cache.New(cfg.RedisServer, 0)
	app.Sumsub = sumsub.NewClient(cfg.Sumsub.BaseURL, cfg.Sumsub.AppToken, cfg.Sumsub.SecretKey, cfg.Sumsub.DefaultLevel)
	app.FileUploader = file.New(cfg.FileUploader.CloudName, cfg.FileUploader.ApiKey, cfg.FileUploader.ApiSecret)

	return app, nil
}
