package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// HEALTH_ADDR points at a running client started with HEALTH_PORT
	HealthAddr string `envconfig:"HEALTH_ADDR"`

	SupabaseURL     string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey string `envconfig:"SUPABASE_ANON_KEY"`
	// Access tokens of two distinct users of the project
	AliceToken string `envconfig:"E2E_ALICE_TOKEN"`
	BobToken   string `envconfig:"E2E_BOB_TOKEN"`

	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
