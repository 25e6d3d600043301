package notification

import (
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-push-backend/config"
)

func TestNewOptions(t *testing.T) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	t.Run("valid keys", func(t *testing.T) {
		opts, err := NewOptions(config.PushConfig{
			PublicKey:  pub,
			PrivateKey: priv,
			Subject:    "mailto:ops@example.com",
			TTL:        60,
			Urgency:    "high",
		})
		require.NoError(t, err)
		assert.Equal(t, pub, opts.VAPIDPublicKey)
		assert.Equal(t, priv, opts.VAPIDPrivateKey)
		assert.Equal(t, "mailto:ops@example.com", opts.Subscriber)
		assert.Equal(t, 60, opts.TTL)
		assert.Equal(t, webpush.UrgencyHigh, opts.Urgency)
	})

	t.Run("missing keys", func(t *testing.T) {
		_, err := NewOptions(config.PushConfig{PublicKey: pub})
		assert.ErrorIs(t, err, ErrMissingVAPIDKeys)
	})

	t.Run("swapped keys", func(t *testing.T) {
		_, err := NewOptions(config.PushConfig{PublicKey: priv, PrivateKey: pub})
		assert.Error(t, err)
	})

	t.Run("undecodable key", func(t *testing.T) {
		_, err := NewOptions(config.PushConfig{PublicKey: "not base64!", PrivateKey: priv})
		assert.Error(t, err)
	})

	t.Run("unknown urgency", func(t *testing.T) {
		_, err := NewOptions(config.PushConfig{PublicKey: pub, PrivateKey: priv, Urgency: "urgent"})
		assert.Error(t, err)
	})
}
