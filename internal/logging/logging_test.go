package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hackgods/dental-agenda/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestNew_UsesConfiguredLevel(t *testing.T) {
	logger := New(config.Config{LogLevel: "error", Env: "test"}, "api-server")
	assert.Equal(t, zerolog.ErrorLevel, logger.GetLevel())
}
