package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Reservation  ReservationConfig
	Provenance   ProvenanceConfig
	RateLimit    RateLimitConfig
	Tracing      TracingConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STADIUMCARD_APP_ENV" required:"true"`
	Port         string `envconfig:"STADIUMCARD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STADIUMCARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STADIUMCARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STADIUMCARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STADIUMCARD_DB_DSN"`
	Driver string `envconfig:"STADIUMCARD_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STADIUMCARD_DB_HOST"`
	Port     int    `envconfig:"STADIUMCARD_DB_PORT" default:"5432"`
	User     string `envconfig:"STADIUMCARD_DB_USER"`
	Password string `envconfig:"STADIUMCARD_DB_PASSWORD"`
	Name     string `envconfig:"STADIUMCARD_DB_NAME"`
	SSLMode  string `envconfig:"STADIUMCARD_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STADIUMCARD_SQLITE_PATH" default:"stadiumcard.db"`

	MaxOpenConns    int           `envconfig:"STADIUMCARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STADIUMCARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STADIUMCARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STADIUMCARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration past which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"STADIUMCARD_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the local single-file driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STADIUMCARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STADIUMCARD_REDIS_ADDR"`
	Password     string        `envconfig:"STADIUMCARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"STADIUMCARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STADIUMCARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STADIUMCARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STADIUMCARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STADIUMCARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STADIUMCARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens minted by the external identity provider.
type JWTConfig struct {
	Secret            string        `envconfig:"STADIUMCARD_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"STADIUMCARD_JWT_ISSUER" required:"true"`
	Audience          string        `envconfig:"STADIUMCARD_JWT_AUDIENCE"`
	ExpirationMinutes int           `envconfig:"STADIUMCARD_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"STADIUMCARD_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STADIUMCARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STADIUMCARD_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"STADIUMCARD_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STADIUMCARD_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STADIUMCARD_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic         string `envconfig:"STADIUMCARD_PUBSUB_DOMAIN_TOPIC" default:"sc-domain-events"`
	NotificationTopic   string `envconfig:"STADIUMCARD_PUBSUB_NOTIFICATION_TOPIC" default:"sc-notifications"`
	PaymentSubscription string `envconfig:"STADIUMCARD_PUBSUB_PAYMENT_SUBSCRIPTION" default:"sc-payment-confirmations"`
}

type KafkaConfig struct {
	Brokers          []string `envconfig:"STADIUMCARD_KAFKA_BROKERS" default:"localhost:9092"`
	LiveMomentsTopic string   `envconfig:"STADIUMCARD_KAFKA_LIVE_MOMENTS_TOPIC" default:"live-moments"`
	GroupID          string   `envconfig:"STADIUMCARD_KAFKA_GROUP_ID" default:"stadiumcard-moment-ingest"`
	Workers          int      `envconfig:"STADIUMCARD_KAFKA_WORKERS" default:"2"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STADIUMCARD_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STADIUMCARD_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STADIUMCARD_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type ReservationConfig struct {
	StalePendingAfter time.Duration `envconfig:"STADIUMCARD_RESERVATION_STALE_PENDING_AFTER" default:"72h"`
	RateLimitWindow   time.Duration `envconfig:"STADIUMCARD_RESERVATION_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerUser  int           `envconfig:"STADIUMCARD_RESERVATION_RATE_LIMIT_PER_USER" default:"10"`
}

type ProvenanceConfig struct {
	SnapshotLookback  time.Duration `envconfig:"STADIUMCARD_PROVENANCE_SNAPSHOT_LOOKBACK" default:"1h"`
	CloneSearchWindow time.Duration `envconfig:"STADIUMCARD_PROVENANCE_CLONE_SEARCH_WINDOW" default:"240h"`
	CopyPollInterval  time.Duration `envconfig:"STADIUMCARD_PROVENANCE_COPY_POLL_INTERVAL" default:"2s"`
	CopyPollAttempts  int           `envconfig:"STADIUMCARD_PROVENANCE_COPY_POLL_ATTEMPTS" default:"15"`
	MemoryMaxLength   int           `envconfig:"STADIUMCARD_PROVENANCE_MEMORY_MAX_LENGTH" default:"150"`
	HistoryRetries    int           `envconfig:"STADIUMCARD_PROVENANCE_HISTORY_RETRIES" default:"5"`
	SweepWindow       time.Duration `envconfig:"STADIUMCARD_PROVENANCE_SWEEP_WINDOW" default:"240h"`
}

type RateLimitConfig struct {
	Enabled        bool          `envconfig:"STADIUMCARD_RATE_LIMIT_ENABLED" default:"true"`
	Window         time.Duration `envconfig:"STADIUMCARD_RATE_LIMIT_WINDOW" default:"1m"`
	WritesPerUser  int           `envconfig:"STADIUMCARD_RATE_LIMIT_WRITES_PER_USER" default:"60"`
	ReadsPerClient int           `envconfig:"STADIUMCARD_RATE_LIMIT_READS_PER_CLIENT" default:"300"`
}

type TracingConfig struct {
	Endpoint    string  `envconfig:"STADIUMCARD_OTEL_EXPORTER_ENDPOINT"`
	Insecure    bool    `envconfig:"STADIUMCARD_OTEL_EXPORTER_INSECURE" default:"true"`
	SampleRatio float64 `envconfig:"STADIUMCARD_OTEL_SAMPLE_RATIO" default:"1"`
}

type CORSConfig struct {
	AllowedOrigins []string      `envconfig:"STADIUMCARD_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,https://stadiumcard.app,https://www.stadiumcard.app"`
	MaxAge         time.Duration `envconfig:"STADIUMCARD_CORS_MAX_AGE" default:"5m"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
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
