package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseToken(t *testing.T) {
	secret := "test-secret"
	token, err := SignToken("alice", "Alice", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignToken(): %v", err)
	}

	claims, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("ParseToken(): %v", err)
	}
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "Alice", claims.Username)
}

func TestParseTokenFailures(t *testing.T) {
	secret := "test-secret"
	valid, _ := SignToken("alice", "Alice", secret, time.Hour)
	expired, _ := SignToken("alice", "Alice", secret, -time.Hour)
	noSubject, _ := SignToken("", "Alice", secret, time.Hour)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"garbage", "not-a-token", secret},
		{"wrong key", valid, "another-secret"},
		{"expired", expired, secret},
		{"missing subject", noSubject, secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}
