package main

import (
	"chat-relay/errors"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{"PORT": "9000", "KAFKA_BROKERS": "k1:9092, k2:9092,"}, &config)

	req.NoError(err)
	req.Equal("0.0.0.0:9000", config.Address())
	req.Equal(10*time.Second, config.WriteTimeout)
	req.Equal("none", config.BusDriver)
	req.False(config.ModerationEnabled)
	req.Equal([]string{"k1:9092", "k2:9092"}, config.Brokers())
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("**")
	req.ErrorIs(err, errors.ErrInvalidCharacter)

	_, err = CharacterRune("")
	req.ErrorIs(err, errors.ErrInvalidCharacter)
}
