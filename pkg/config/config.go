package config

import "time"

// Config is the complete runtime configuration, read from the environment
type Config struct {
	Queue        QueueConfig        `envPrefix:"QUEUE_"`
	Store        StoreConfig        `envPrefix:"STORE_"`
	Database     DatabaseConfig     `envPrefix:"DB_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	SQS          SQSConfig          `envPrefix:"SQS_"`
	Connectivity ConnectivityConfig `envPrefix:"CONNECTIVITY_"`
	Log          LogConfig          `envPrefix:"LOG_"`
}

// QueueConfig tunes retry, concurrency and draining
type QueueConfig struct {
	MaxAttempts   int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	BaseDelay     time.Duration `env:"BASE_DELAY" envDefault:"2s"`
	MaxDelay      time.Duration `env:"MAX_DELAY" envDefault:"300s"`
	Concurrency   int           `env:"CONCURRENCY" envDefault:"5"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"20"`
	DrainInterval time.Duration `env:"DRAIN_INTERVAL" envDefault:"5m"`
	Retention     time.Duration `env:"RETENTION" envDefault:"168h"`
	// SharedLock serialises drain cycles across processes sharing one store
	SharedLock bool `env:"SHARED_LOCK" envDefault:"false"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"` // memory, file, sqlite, mysql, postgres, redis
	Path   string `env:"PATH" envDefault:"./data/syncqueue.json"`
}

// DatabaseConfig holds configuration for SQL database connection
type DatabaseConfig struct {
	Connection  string `env:"CONNECTION" envDefault:"sqlite"` // sqlite, mysql, pgsql
	Host        string `env:"HOST" envDefault:"127.0.0.1"`
	Port        string `env:"PORT" envDefault:"3306"`
	Database    string `env:"DATABASE" envDefault:"./data/syncqueue.db"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Table       string `env:"TABLE" envDefault:"offline_operations"`
	FailedTable string `env:"FAILED_TABLE" envDefault:"failed_operations"`
}

// RedisConfig holds configuration for Redis connection
type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     string `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"syncqueue"`
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// ConnectivityConfig configures reachability probing of the backend
type ConnectivityConfig struct {
	ProbeAddress  string        `env:"PROBE_ADDRESS"`
	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"15s"`
	ProbeTimeout  time.Duration `env:"PROBE_TIMEOUT" envDefault:"3s"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"true"`
}
