package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_URL is the HTTP base address of a running relay; the suite is skipped without it
	RelayURL string `envconfig:"RELAY_URL"`
	// RELAY_GRPC_ADDR is the gRPC health address, checked only when set
	GrpcAddr string `envconfig:"RELAY_GRPC_ADDR"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
