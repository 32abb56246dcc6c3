package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, DefaultWSURL, cfg.WSURL)
	assert.Equal(t, 3*time.Second, cfg.TypingExpiry)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, time.Local, cfg.Location())
	assert.Equal(t, float64(DefaultRateLimit), cfg.RateLimit)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, DefaultZipkinURL, cfg.ZipkinURL)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"CHAT_API_URL":            "https://lms.example.com/api",
		"CHAT_WS_URL":             "wss://lms.example.com/ws",
		"CHAT_TYPING_EXPIRY":      "1500ms",
		"CHAT_RECONNECT_ATTEMPTS": "2",
		"CHAT_LANG":               "de",
		"CHAT_TIMEZONE":           "UTC",
		"LOG_FORMAT":              "json",
		"SERVER_RATE_LIMIT":       "0.5",
		"PUBSUB_TRACING_ENABLED":  "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://lms.example.com/api", cfg.APIURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingExpiry)
	assert.Equal(t, 2, cfg.ReconnectAttempts)
	assert.Equal(t, "de", cfg.Language)
	assert.Equal(t, "UTC", cfg.Location().String())
	assert.Equal(t, 0.5, cfg.RateLimit)
	assert.True(t, cfg.TracingEnabled)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"CHAT_TYPING_EXPIRY": "soon"}},
		{"zero expiry", map[string]string{"CHAT_TYPING_EXPIRY": "0s"}},
		{"bad attempts", map[string]string{"CHAT_RECONNECT_ATTEMPTS": "many"}},
		{"negative attempts", map[string]string{"CHAT_RECONNECT_ATTEMPTS": "-1"}},
		{"bad url", map[string]string{"CHAT_API_URL": "not a url"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"bad rate limit", map[string]string{"SERVER_RATE_LIMIT": "fast"}},
		{"negative rate limit", map[string]string{"SERVER_RATE_LIMIT": "-1"}},
		{"bad tracing flag", map[string]string{"PUBSUB_TRACING_ENABLED": "maybe"}},
		{"unknown timezone", map[string]string{"CHAT_TIMEZONE": "Mars/Olympus_Mons"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}
