package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	WordPress WordPressConfig
	Session   SessionConfig
	CORS      CORSConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит настройки подключения к Redis (для rate limiting).
// Поддерживает режимы: single, sentinel, cluster.
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`
}

// WordPressConfig содержит параметры интеграции с контент-бэкендом
type WordPressConfig struct {
	// APIBaseURL — базовый URL REST API контент-бэкенда
	// (например, https://asapdigest.com/wp-json)
	APIBaseURL string `mapstructure:"api_base_url"`

	// SyncSecret — shared secret для внутренних sync-запросов (X-WP-Sync-Secret)
	SyncSecret string `mapstructure:"sync_secret"`

	// TimeoutSec — таймаут исходящих запросов к контент-бэкенду в секундах.
	// Таймаут трактуется как недоступность upstream, не как невалидный токен.
	TimeoutSec int `mapstructure:"timeout_sec"`
}

// SessionConfig содержит настройки локальных сессий
type SessionConfig struct {
	// TTLHours — время жизни сессии в часах (по умолчанию 720 = 30 дней)
	TTLHours int `mapstructure:"ttl_hours"`

	// CookieDomain — domain-атрибут сессионной куки (пусто = host-only)
	CookieDomain string `mapstructure:"cookie_domain"`
}

// CORSConfig содержит настройки cross-origin политики
type CORSConfig struct {
	// AllowedOrigin — единственный разрешенный origin для кросс-доменного
	// sync-пути. Все остальные origin отклоняются.
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Новый экземпляр Viper, чтобы избежать глобального состояния

	// 1. Значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readtimeout", 15)
	vip.SetDefault("server.writetimeout", 15)
	vip.SetDefault("wordpress.timeout_sec", 10)
	vip.SetDefault("session.ttl_hours", 720)
	vip.SetDefault("database.sslmode", "disable")

	// 2. Привязываем переменные окружения ЯВНО
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции WordPress
	vip.BindEnv("wordpress.api_base_url", "WP_API_BASE_URL")
	vip.BindEnv("wordpress.sync_secret", "WP_SYNC_SECRET")
	vip.BindEnv("wordpress.timeout_sec", "WP_API_TIMEOUT_SEC")

	// Привязка для секции Session
	vip.BindEnv("session.ttl_hours", "SESSION_TTL_HOURS")
	vip.BindEnv("session.cookie_domain", "SESSION_COOKIE_DOMAIN")

	// Привязка для CORS
	vip.BindEnv("cors.allowed_origin", "ALLOWED_ORIGIN")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// 3. Путь к файлу конфигурации (не страшно, если его нет, т.к. есть BindEnv)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 4. Анмаршалим конфигурацию (Viper объединит файл и привязанные env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Логирование конфигурации (только в debug режиме, без секретов)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("WP API Base URL: %s", cfg.WordPress.APIBaseURL)
		log.Printf("WP Sync Secret Set: %t", cfg.WordPress.SyncSecret != "")
		log.Printf("Allowed Origin: %s", cfg.CORS.AllowedOrigin)
		log.Printf("Session TTL Hours: %d", cfg.Session.TTLHours)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// 6. Проверка обязательных параметров
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.WordPress.APIBaseURL == "" {
		return nil, fmt.Errorf("WordPress API base URL is required in config (check WP_API_BASE_URL env var)")
	}
	if cfg.WordPress.SyncSecret == "" {
		return nil, fmt.Errorf("WordPress sync secret is required in config (check WP_SYNC_SECRET env var)")
	}
	if cfg.CORS.AllowedOrigin == "" {
		return nil, fmt.Errorf("allowed origin is required in config (check ALLOWED_ORIGIN env var)")
	}

	return &cfg, nil
}
