package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/veridianlabs/vectord/internal/tenant"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"console", Config{Level: "debug", Format: "console"}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestContextFieldsCarryIdentityAndRequest(t *testing.T) {
	ctx := tenant.ContextWithIdentity(context.Background(), tenant.Identity{
		TenantID:  "acme",
		ProjectID: "search",
	})
	ctx = WithRequestID(ctx, "req-123")

	core, logs := observer.New(zap.InfoLevel)
	For(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "acme", fields["tenant_id"])
	assert.Equal(t, "search", fields["project_id"])
	assert.Equal(t, "req-123", fields["request_id"])
}

func TestContextFieldsEmptyContext(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestForNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		For(context.Background(), nil).Info("safe")
	})
}

func TestRequestIDMissing(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestSecretNeverPrints(t *testing.T) {
	s := Secret("sk-super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "sk-super-secret", s.Reveal())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
}

func TestSecretEmpty(t *testing.T) {
	var s Secret
	assert.Empty(t, s.String())
	assert.False(t, s.IsSet())
}
