package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names so
// the prefix only matters for collection-level overrides.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"
	EnvRedisURL = "STOREFRONT_REDIS_URL"
)

var hostDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
