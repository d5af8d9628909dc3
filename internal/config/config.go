package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Assignment   AssignmentConfig
	Poller       PollerConfig
	Client       ClientConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	LiveWaitSeconds       int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the live relay.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	LiveChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token validation parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds outbound delivery settings. Every field is optional;
// a missing value skips the matching channel or recipient.
type NotificationConfig struct {
	WebhookURL     string
	ChatGatewayURL string
	ChatInstance   string
	ChatAPIKey     string
	TeamContacts   map[string]string
	CountryCode    string
	TimeoutSeconds int
}

// AssignmentConfig identifies the designated agents for automatic routing.
type AssignmentConfig struct {
	AutomationLeadEmail string
	SpecialistEmail     string
}

// PollerConfig sets client refresh cadences per view.
type PollerConfig struct {
	ListIntervalSeconds   int
	DetailIntervalSeconds int
	NoticeIntervalSeconds int
}

// ClientConfig points the watch client at an API instance.
type ClientConfig struct {
	BaseURL  string
	Token    string
	TicketID string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	contacts, err := parseContacts(os.Getenv("NOTIFY_TEAM_CONTACTS"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_TEAM_CONTACTS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			LiveWaitSeconds:       getEnvAsInt("HTTP_LIVE_WAIT_SECONDS", 25),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:        os.Getenv("REDIS_ADDR"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			LiveChannel: getEnv("REDIS_LIVE_CHANNEL", "helpdesk:live"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			WebhookURL:     os.Getenv("NOTIFY_WEBHOOK_URL"),
			ChatGatewayURL: strings.TrimRight(os.Getenv("NOTIFY_CHAT_GATEWAY_URL"), "/"),
			ChatInstance:   os.Getenv("NOTIFY_CHAT_INSTANCE"),
			ChatAPIKey:     os.Getenv("NOTIFY_CHAT_API_KEY"),
			TeamContacts:   contacts,
			CountryCode:    getEnv("NOTIFY_COUNTRY_CODE", "55"),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10),
		},
		Assignment: AssignmentConfig{
			AutomationLeadEmail: os.Getenv("ASSIGN_AUTOMATION_LEAD_EMAIL"),
			SpecialistEmail:     os.Getenv("ASSIGN_SPECIALIST_EMAIL"),
		},
		Poller: PollerConfig{
			ListIntervalSeconds:   getEnvAsInt("POLL_LIST_INTERVAL_SECONDS", 10),
			DetailIntervalSeconds: getEnvAsInt("POLL_DETAIL_INTERVAL_SECONDS", 3),
			NoticeIntervalSeconds: getEnvAsInt("POLL_NOTICE_INTERVAL_SECONDS", 30),
		},
		Client: ClientConfig{
			BaseURL:  strings.TrimRight(getEnv("CLIENT_BASE_URL", "http://127.0.0.1:8080"), "/"),
			Token:    os.Getenv("CLIENT_TOKEN"),
			TicketID: os.Getenv("CLIENT_TICKET_ID"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LiveWait bounds how long a live long-poll request is held open.
func (a AppConfig) LiveWait() time.Duration {
	return seconds(a.LiveWaitSeconds, 25)
}

// Timeout returns the hard bound for each outbound delivery.
func (n NotificationConfig) Timeout() time.Duration {
	return seconds(n.TimeoutSeconds, 10)
}

// WebhookEnabled reports whether the webhook channel is configured.
func (n NotificationConfig) WebhookEnabled() bool {
	return strings.TrimSpace(n.WebhookURL) != ""
}

// ChatEnabled reports whether the chat gateway is fully configured.
func (n NotificationConfig) ChatEnabled() bool {
	return strings.TrimSpace(n.ChatGatewayURL) != "" &&
		strings.TrimSpace(n.ChatInstance) != "" &&
		strings.TrimSpace(n.ChatAPIKey) != ""
}

// ListInterval is the refresh cadence for management lists.
func (p PollerConfig) ListInterval() time.Duration {
	return seconds(p.ListIntervalSeconds, 10)
}

// DetailInterval is the refresh cadence for a single ticket view.
func (p PollerConfig) DetailInterval() time.Duration {
	return seconds(p.DetailIntervalSeconds, 3)
}

// NoticeInterval is the refresh cadence for the notice board.
func (p PollerConfig) NoticeInterval() time.Duration {
	return seconds(p.NoticeIntervalSeconds, 30)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// parseContacts reads "team:phone,team:phone".
func parseContacts(raw string) (map[string]string, error) {
	contacts := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return contacts, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		team, phone, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(team) == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		contacts[strings.ToLower(strings.TrimSpace(team))] = strings.TrimSpace(phone)
	}
	return contacts, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
