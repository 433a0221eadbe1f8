package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWebhook() *Webhook {
	return &Webhook{
		URL:      "https://example.com/hooks/form",
		Secret:   "s3cret",
		Enabled:  true,
		Triggers: []string{"session.completed"},
		RetryPolicy: RetryPolicy{
			MaxAttempts:       3,
			BackoffMultiplier: 2.0,
			InitialDelayMs:    1000,
		},
	}
}

func TestValidateWebhookConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Webhook)
		wantErr string
	}{
		{
			name:   "Valid configuration",
			mutate: func(wh *Webhook) {},
		},
		{
			name:   "Valid http URL",
			mutate: func(wh *Webhook) { wh.URL = "http://internal.example:8080/hook" },
		},
		{
			name:    "Empty URL",
			mutate:  func(wh *Webhook) { wh.URL = "" },
			wantErr: "url is required",
		},
		{
			name:    "Unsupported scheme",
			mutate:  func(wh *Webhook) { wh.URL = "ftp://example.com/hook" },
			wantErr: "scheme must be http or https",
		},
		{
			name:    "Missing host",
			mutate:  func(wh *Webhook) { wh.URL = "https:///path-only" },
			wantErr: "missing a host",
		},
		{
			name:    "No triggers",
			mutate:  func(wh *Webhook) { wh.Triggers = nil },
			wantErr: "at least one trigger is required",
		},
		{
			name:    "Unknown trigger",
			mutate:  func(wh *Webhook) { wh.Triggers = []string{"session.completed", "order.shipped"} },
			wantErr: `unknown trigger "order.shipped"`,
		},
		{
			name:    "Max attempts below one",
			mutate:  func(wh *Webhook) { wh.RetryPolicy.MaxAttempts = 0 },
			wantErr: "max_attempts must be at least 1",
		},
		{
			name:    "Multiplier below one",
			mutate:  func(wh *Webhook) { wh.RetryPolicy.BackoffMultiplier = 0.5 },
			wantErr: "backoff_multiplier must be at least 1",
		},
		{
			name:    "Initial delay too small",
			mutate:  func(wh *Webhook) { wh.RetryPolicy.InitialDelayMs = 50 },
			wantErr: "initial_delay_ms must be at least 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := validWebhook()
			tt.mutate(wh)

			err := ValidateWebhookConfig(wh)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateWebhookConfigAggregatesErrors(t *testing.T) {
	wh := validWebhook()
	wh.URL = ""
	wh.Triggers = nil
	wh.RetryPolicy.MaxAttempts = 0

	err := ValidateWebhookConfig(wh)
	require.Error(t, err)

	// all three problems reported at once
	assert.Contains(t, err.Error(), "url is required")
	assert.Contains(t, err.Error(), "at least one trigger is required")
	assert.Contains(t, err.Error(), "max_attempts must be at least 1")
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"Empty secret", "", ""},
		{"Short secret fully masked", "abc", "***"},
		{"Long secret shows prefix", "whsec_1234567890", "whse********"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskSecret(tt.secret))
		})
	}
}

func TestToResponseNeverLeaksSecret(t *testing.T) {
	wh := validWebhook()
	wh.Secret = "super-secret-value"

	resp := wh.ToResponse()

	assert.True(t, resp.Signed)
	assert.NotContains(t, resp.SecretPreview, "secret-value")
	assert.Equal(t, "supe********", resp.SecretPreview)
}

func TestToResponseUnsigned(t *testing.T) {
	wh := validWebhook()
	wh.Secret = ""

	resp := wh.ToResponse()

	assert.False(t, resp.Signed)
	assert.Empty(t, resp.SecretPreview)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 2.0, policy.BackoffMultiplier)
	assert.Equal(t, 1000, policy.InitialDelayMs)

	assert.NoError(t, ValidateWebhookConfig(&Webhook{
		URL:         "https://example.com/hook",
		Triggers:    []string{"session.started"},
		RetryPolicy: policy,
	}))
}
