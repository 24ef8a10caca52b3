package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginAllowed(t *testing.T) {
	const host = "agent.local:8080"

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://agent.local:8080", true},
		{"https://agent.local:8080", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://192.168.1.50", true},
		{"http://10.0.0.9:8080", true},
		{"https://evil.example.com", false},
		{"http://203.0.113.7", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, originAllowed(tt.origin, host), "origin %q", tt.origin)
	}
}
