package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "FLEETLINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Push          PushConfig
	Locations     LocationsConfig
	Realtime      RealtimeConfig
	Notifications NotificationsConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FLEETLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"FLEETLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FLEETLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FLEETLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FLEETLINE_DB_DSN"`
	Driver string `envconfig:"FLEETLINE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FLEETLINE_DB_HOST"`
	Port     int    `envconfig:"FLEETLINE_DB_PORT" default:"5432"`
	User     string `envconfig:"FLEETLINE_DB_USER"`
	Password string `envconfig:"FLEETLINE_DB_PASSWORD"`
	Name     string `envconfig:"FLEETLINE_DB_NAME"`
	SSLMode  string `envconfig:"FLEETLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FLEETLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FLEETLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FLEETLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FLEETLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FLEETLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FLEETLINE_REDIS_ADDR"`
	Password     string        `envconfig:"FLEETLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FLEETLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FLEETLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FLEETLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FLEETLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FLEETLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FLEETLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FLEETLINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FLEETLINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FLEETLINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FLEETLINE_GCP_PROJECT_ID" required:"true"`
	ApplicationCredentials string `envconfig:"FLEETLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TrackingTopic        string `envconfig:"FLEETLINE_PUBSUB_TRACKING_TOPIC" default:"fl-tracking-events"`
	TrackingSubscription string `envconfig:"FLEETLINE_PUBSUB_TRACKING_SUBSCRIPTION" required:"true"`
}

type PushConfig struct {
	Endpoint   string        `envconfig:"FLEETLINE_PUSH_ENDPOINT"`
	ServerKey  string        `envconfig:"FLEETLINE_PUSH_SERVER_KEY"`
	Timeout    time.Duration `envconfig:"FLEETLINE_PUSH_TIMEOUT" default:"10s"`
	DriverApp  string        `envconfig:"FLEETLINE_PUSH_DRIVER_TOPIC_PREFIX" default:"drivers"`
	StaffTopic string        `envconfig:"FLEETLINE_PUSH_STAFF_TOPIC" default:"dispatch-staff"`
}

type LocationsConfig struct {
	MinSubmitInterval time.Duration `envconfig:"FLEETLINE_LOCATIONS_MIN_SUBMIT_INTERVAL" default:"5s"`
	ShiftLimit        time.Duration `envconfig:"FLEETLINE_LOCATIONS_SHIFT_LIMIT" default:"12h"`
}

type RealtimeConfig struct {
	SendBuffer     int           `envconfig:"FLEETLINE_REALTIME_SEND_BUFFER" default:"64"`
	WriteTimeout   time.Duration `envconfig:"FLEETLINE_REALTIME_WRITE_TIMEOUT" default:"10s"`
	PongTimeout    time.Duration `envconfig:"FLEETLINE_REALTIME_PONG_TIMEOUT" default:"60s"`
	AllowedOrigins []string      `envconfig:"FLEETLINE_REALTIME_ALLOWED_ORIGINS"`
}

type NotificationsConfig struct {
	DispatchQueueSize int `envconfig:"FLEETLINE_NOTIFICATIONS_DISPATCH_QUEUE" default:"256"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FLEETLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FLEETLINE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		db.DSN = "file::memory:?cache=shared"
		return nil
	}

	missing := []string{}
	for envVar, value := range map[string]string{
		"FLEETLINE_DB_HOST": db.Host,
		"FLEETLINE_DB_USER": db.User,
		"FLEETLINE_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, envVar)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either FLEETLINE_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
