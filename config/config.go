package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// Service
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"guardtrack"`

	// PostgreSQL
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"guardtrack"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"gt"`

	// RabbitMQ
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT
	JWTSecret        string `env:"JWT_SECRET"` // required, signing key
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// Geofence engine
	GeofenceDwellSeconds   int     `env:"GEOFENCE_DWELL_SECONDS" envDefault:"30"`
	GeofenceEventLogSize   int     `env:"GEOFENCE_EVENT_LOG_SIZE" envDefault:"200"`
	AutomationCooldownSec  int     `env:"AUTOMATION_COOLDOWN_SECONDS" envDefault:"300"`
	AutomationConfirmFirst bool    `env:"AUTOMATION_REQUIRE_CONFIRMATION" envDefault:"false"`
	LocationTimeoutSeconds int     `env:"LOCATION_TIMEOUT_SECONDS" envDefault:"15"`
	LocationMaxAccuracyM   float64 `env:"LOCATION_MAX_ACCURACY_METERS" envDefault:"100"`
	LocationHistorySize    int     `env:"LOCATION_HISTORY_SIZE" envDefault:"50"`

	// Offline sync queue
	SyncMaxRetries       int `env:"SYNC_MAX_RETRIES" envDefault:"5"`
	SyncRequestTimeoutMS int `env:"SYNC_REQUEST_TIMEOUT_MS" envDefault:"10000"`

	// Agent
	ServerBaseURL string `env:"SERVER_BASE_URL" envDefault:"http://localhost:8888"`
	AgentToken    string `env:"AGENT_TOKEN"` // guard JWT presented by the device agent

	// No-show scheduler
	NoShowGraceMinutes   int `env:"NOSHOW_GRACE_MINUTES" envDefault:"30"`
	NoShowSweepIntervalS int `env:"NOSHOW_SWEEP_INTERVAL_SECONDS" envDefault:"300"`

	// Snowflake ID generator
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// Logging
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// OpenTelemetry
	OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelSample   float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// Rate limiting, consumed by middleware
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
}

// MustValidate 进程入口显式调用，缺关键配置直接退出
func MustValidate() {
	if Cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	if Cfg.GeofenceDwellSeconds <= 0 {
		log.Fatal("GEOFENCE_DWELL_SECONDS must be positive")
	}

	if Cfg.SyncMaxRetries <= 0 {
		log.Fatal("SYNC_MAX_RETRIES must be positive")
	}

	if Cfg.AgentToken == "" {
		log.Printf("WARN: AGENT_TOKEN is not set, the agent cannot authenticate against the server")
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
