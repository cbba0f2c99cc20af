package config

import (
	"fmt"
	"net/url"
	"strings"
)

// StoreDriver selects the persistence backend.
type StoreDriver string

const (
	// StoreDriverPostgres keeps jobs, step results and tenant records in PostgreSQL.
	StoreDriverPostgres StoreDriver = "postgres"
	// StoreDriverMemory keeps everything in process memory. Nothing survives a restart.
	StoreDriverMemory StoreDriver = "memory"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver StoreDriver `env:"STORE_DRIVER" envDefault:"postgres"`
}

// Sanitize normalises the driver name; unknown drivers fall back to postgres.
func (s *StoreConfig) Sanitize() {
	s.Driver = StoreDriver(strings.ToLower(strings.TrimSpace(string(s.Driver))))
	if s.Driver != StoreDriverMemory {
		s.Driver = StoreDriverPostgres
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"prepflow"`
	Password string `env:"PASSWORD" envDefault:"prepflow"`
	Name     string `env:"NAME"     envDefault:"prepflow"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // 'require' in production
	// MaxOpenConns bounds the pool shared by all services of one process.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"20"`
	// RunMigrationsOnStart applies pending migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN renders the connection string understood by pgx.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig contains Redis configuration. Without Redis the job lock and trigger de-duplication are
// process-local.
type RedisConfig struct {
	Enabled      bool     `env:"ENABLED"       envDefault:"false"`
	URI          string   `env:"URI"           envDefault:"localhost:6379"`
	Password     string   `env:"PASSWORD"      envDefault:""`
	DB           int      `env:"DB"            envDefault:"0"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:""`
	UseCluster   bool     `env:"USE_CLUSTER"   envDefault:"false"`
}
