package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
)

type nopRequest struct{}

func (nopRequest) Header(string) string { return "" }
func (nopRequest) PeerAddress() string  { return "" }

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		field  string
	}{
		{"empty name", Config{Window: time.Minute, MaxRequests: 1}, "name"},
		{"bad name", Config{Name: "Auth Flow", Window: time.Minute, MaxRequests: 1}, "name"},
		{"zero window", Config{Name: "x", MaxRequests: 1}, "window"},
		{"sub-ms window", Config{Name: "x", Window: time.Microsecond, MaxRequests: 1}, "window"},
		{"zero limit", Config{Name: "x", Window: time.Minute}, "max_requests"},
		{"negative limit", Config{Name: "x", Window: time.Minute, MaxRequests: -3}, "max_requests"},
		{"negative block", Config{Name: "x", Window: time.Minute, MaxRequests: 1, BlockDuration: -time.Second}, "block_duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.config)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, pgerrors.ErrInvalidConfiguration))

			var verr *pgerrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNew_Accessors(t *testing.T) {
	var fired bool
	p, err := New(Config{
		Name:          "auth",
		Window:        15 * time.Minute,
		MaxRequests:   5,
		BlockDuration: 30 * time.Minute,
		KeyFunc:       func(keys.Request) string { return "user" },
		FailClosed:    true,
		OnExceeded: func(_ context.Context, _ Event) {
			fired = true
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "auth", p.Name())
	assert.Equal(t, 15*time.Minute, p.Window())
	assert.Equal(t, 5, p.MaxRequests())
	assert.Equal(t, 30*time.Minute, p.BlockDuration())
	assert.True(t, p.Blocks())
	assert.True(t, p.FailClosed())
	require.NotNil(t, p.KeyFunc())
	assert.Equal(t, "user", p.KeyFunc()(nopRequest{}))
	require.NotNil(t, p.OnExceeded())
	p.OnExceeded()(context.Background(), Event{})
	assert.True(t, fired)
}

func TestPolicy_ConfigIsACopy(t *testing.T) {
	p := MustNew(Config{Name: "api", Window: time.Minute, MaxRequests: 100})

	c := p.Config()
	c.MaxRequests = 1

	assert.Equal(t, 100, p.MaxRequests())
	tuned := MustNew(c)
	assert.Equal(t, 1, tuned.MaxRequests())
}

func TestPolicy_ShouldSkip(t *testing.T) {
	never := MustNew(Config{Name: "a", Window: time.Second, MaxRequests: 1})
	assert.False(t, never.ShouldSkip(nopRequest{}))

	always := MustNew(Config{Name: "b", Window: time.Second, MaxRequests: 1,
		Skip: func(keys.Request) bool { return true }})
	assert.True(t, always.ShouldSkip(nopRequest{}))

	panics := MustNew(Config{Name: "c", Window: time.Second, MaxRequests: 1,
		Skip: func(keys.Request) bool { panic("boom") }})
	assert.NotPanics(t, func() { assert.False(t, panics.ShouldSkip(nopRequest{})) })
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() { MustNew(Config{}) })
}
