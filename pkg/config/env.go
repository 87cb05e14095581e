package config

// EnvPrefix is handed to envconfig; the struct tags already carry the full
// variable names, which envconfig falls back to when the prefixed form is unset.
const EnvPrefix = "STADIUMCARD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv    = "STADIUMCARD_APP_ENV"
	EnvPort      = "STADIUMCARD_APP_PORT"
	EnvLogLevel  = "STADIUMCARD_LOG_LEVEL"
	EnvDBDSN     = "STADIUMCARD_DB_DSN"
	EnvDBDriver  = "STADIUMCARD_DB_DRIVER"
	EnvDBHost    = "STADIUMCARD_DB_HOST"
	EnvDBUser    = "STADIUMCARD_DB_USER"
	EnvDBName    = "STADIUMCARD_DB_NAME"
	EnvDBPass    = "STADIUMCARD_DB_PASSWORD"
	EnvUseSQLite = "STADIUMCARD_USE_SQLITE"
	EnvRedisURL  = "STADIUMCARD_REDIS_URL"
	EnvJWTSecret = "STADIUMCARD_JWT_SECRET"
	EnvJWTIssuer = "STADIUMCARD_JWT_ISSUER"

	EnvSnapshotLookback  = "STADIUMCARD_PROVENANCE_SNAPSHOT_LOOKBACK"
	EnvCloneSearchWindow = "STADIUMCARD_PROVENANCE_CLONE_SEARCH_WINDOW"
	EnvMemoryMaxLength   = "STADIUMCARD_PROVENANCE_MEMORY_MAX_LENGTH"
	EnvKafkaBrokers      = "STADIUMCARD_KAFKA_BROKERS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
