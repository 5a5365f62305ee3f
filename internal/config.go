package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"

	RealtimeAuto     = "auto"
	RealtimeNone     = "none"
	RealtimeLocal    = "local"
	RealtimePostgres = "postgres"
	RealtimeRedis    = "redis"
	RealtimeSupabase = "supabase"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Backend  string `env:"BACKEND,default=local" validate:"oneof=local postgres supabase"`
	Realtime string `env:"REALTIME,default=auto" validate:"oneof=auto none local postgres redis supabase"`
	Table    string `env:"MESSAGES_TABLE,default=messages" validate:"required,lowercase,excludesall=;'"`

	// Session. With a local backend and no token, one is minted for LocalUserID.
	AccessToken string `env:"ACCESS_TOKEN"`
	JWTSecret   string `env:"JWT_SECRET"`
	LocalUserID string `env:"LOCAL_USER_ID,default=u_a"`

	SupabaseURL     string `env:"SUPABASE_URL" validate:"required_if=Backend supabase"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY" validate:"required_if=Backend supabase"`
	PostgresURL     string `env:"POSTGRES_URL" validate:"required_if=Backend postgres"`
	RedisAddr       string `env:"REDIS_ADDR" validate:"required_if=Realtime redis"`
	BadgerFilepath  string `env:"BADGER_FILEPATH,default=./data/businessconnect"`

	PollInterval    time.Duration `env:"POLL_INTERVAL,default=3s" validate:"gt=0"`
	PollLimit       int           `env:"POLL_LIMIT,default=50" validate:"gt=0"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT,default=10s" validate:"gt=0"`
	JoinTimeout     time.Duration `env:"JOIN_TIMEOUT,default=5s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	BufferSize      int           `env:"BUFFER_SIZE,default=256" validate:"gt=0"`
	LimitMessages   *int          `env:"LIMIT_MESSAGES"`

	DebugPort  int  `env:"DEBUG_PORT,default=0" validate:"gte=0,lte=65535"`
	HealthPort int  `env:"HEALTH_PORT,default=0" validate:"gte=0,lte=65535"`
	Colours    bool `env:"COLOURS,default=true"`
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(realtimeRules, Config{})
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// realtimeRules checks that the realtime source can reach what it listens to.
func realtimeRules(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.SupabaseURL != "" && sl.Validator().Var(c.SupabaseURL, "url") != nil {
		sl.ReportError(c.SupabaseURL, "SupabaseURL", "SupabaseURL", "url", "")
	}
	if c.RedisAddr != "" && sl.Validator().Var(c.RedisAddr, "hostname_port") != nil {
		sl.ReportError(c.RedisAddr, "RedisAddr", "RedisAddr", "hostname_port", "")
	}
	switch c.Realtime {
	case RealtimePostgres:
		if c.PostgresURL == "" {
			sl.ReportError(c.PostgresURL, "PostgresURL", "PostgresURL", "required_with_realtime", c.Realtime)
		}
	case RealtimeSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			sl.ReportError(c.SupabaseURL, "SupabaseURL", "SupabaseURL", "required_with_realtime", c.Realtime)
		}
	case RealtimeLocal:
		if c.Backend != BackendLocal {
			sl.ReportError(c.Realtime, "Realtime", "Realtime", "local_backend_only", c.Backend)
		}
	}
}

// RealtimeSource resolves "auto" to the push channel of the chosen backend.
func (c Config) RealtimeSource() string {
	if c.Realtime != RealtimeAuto {
		return c.Realtime
	}
	switch c.Backend {
	case BackendSupabase:
		return RealtimeSupabase
	case BackendPostgres:
		return RealtimePostgres
	default:
		return RealtimeLocal
	}
}
