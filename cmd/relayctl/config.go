package main

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_URL is the base HTTP address of the relay
	RelayURL string `envconfig:"RELAY_URL" default:"http://localhost:8080"`
	// RELAYCTL_COLOURS enables colorized output for incoming messages
	Colours bool `envconfig:"RELAYCTL_COLOURS" default:"true"`
}

// LoadConfig reads an optional .env file then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
