package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	tests := []struct {
		base    string
		role    Role
		origin  string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8000", role: RoleHost, origin: "https://shop.example",
			want: "ws://localhost:8000/bridge/abc/host?origin=https%3A%2F%2Fshop.example"},
		{base: "https://tester.example/", role: RoleFrame,
			want: "wss://tester.example/bridge/abc/frame"},
		{base: "https://tester.example/embed", role: RoleFrame,
			want: "wss://tester.example/embed/bridge/abc/frame"},
		{base: "ftp://tester.example", role: RoleHost, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := URL(tt.base, "abc", tt.role, tt.origin)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := URL("http://localhost", "../etc", RoleHost, "")
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	assert.Equal(t, RoleFrame, RoleHost.Peer())
	assert.Equal(t, RoleHost, RoleFrame.Peer())
	assert.Equal(t, "widget", RoleFrame.Source())
	assert.Equal(t, "host", RoleHost.Source())
	assert.False(t, Role("popup").Valid())
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"targetOrigin":"*","data":{"type":"headlineTester:hide"}}`))
	require.NoError(t, err)
	assert.Equal(t, "*", f.TargetOrigin)
	assert.JSONEq(t, `{"type":"headlineTester:hide"}`, string(f.Data))

	for _, raw := range []string{`nope`, `{"targetOrigin":"*"}`, `{"data":null}`} {
		_, err := DecodeFrame([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestValidSession(t *testing.T) {
	assert.True(t, ValidSession("0b7c6a9e-1f5e-4d55-9a65-1c1c0f7d9b7e"))
	assert.False(t, ValidSession(""))
	assert.False(t, ValidSession("a/b"))
}
