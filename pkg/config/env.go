package config

const (
	EnvPrefix = "CARRENTAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite     = "sqlite"
	DefaultSQLiteDSN = "file:carrental.db?_foreign_keys=on"

	EnvAppEnv    = "CARRENTAL_APP_ENV"
	EnvPort      = "CARRENTAL_APP_PORT"
	EnvDBDSN     = "CARRENTAL_DB_DSN"
	EnvDBHost    = "CARRENTAL_DB_HOST"
	EnvDBUser    = "CARRENTAL_DB_USER"
	EnvDBName    = "CARRENTAL_DB_NAME"
	EnvRedisURL  = "CARRENTAL_REDIS_URL"
	EnvJWTSecret = "CARRENTAL_JWT_SECRET"
	EnvJWTIssuer = "CARRENTAL_JWT_ISSUER"
	EnvJWTExpMin = "CARRENTAL_JWT_EXPIRATION_MINUTES"

	EnvDefaultCurrency = "CARRENTAL_DEFAULT_CURRENCY"
	EnvStripeTimeout   = "CARRENTAL_STRIPE_CHARGE_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
