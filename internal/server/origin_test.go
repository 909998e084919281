package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   string
		ok     bool
	}{
		{"lowercases scheme and host", "HTTP://Example.COM", "http://example.com", true},
		{"keeps port", "http://localhost:8080", "http://localhost:8080", true},
		{"rejects missing scheme", "example.com", "", false},
		{"rejects empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.origin)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"http://chat.example"}})

	allowed := httptest.NewRequest("GET", "/ws", nil)
	allowed.Header.Set("Origin", "http://chat.example")
	assert.True(t, isOriginAllowed(allowed))

	blocked := httptest.NewRequest("GET", "/ws", nil)
	blocked.Header.Set("Origin", "http://evil.example")
	assert.False(t, isOriginAllowed(blocked))

	missing := httptest.NewRequest("GET", "/ws", nil)
	assert.False(t, isOriginAllowed(missing))
}

func TestWildcardAllowsAnyOrigin(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"*"}})

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anywhere.example")
	assert.True(t, isOriginAllowed(r))
}
