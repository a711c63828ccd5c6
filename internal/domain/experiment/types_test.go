package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "", wantOK: false},
		{in: "   ", wantOK: false},
		{in: "/pricing", want: "/pricing", wantOK: true},
		{in: " pricing ", want: "/pricing", wantOK: true},
		{in: "https://shop.example/a/b?x=1#top", want: "/a/b", wantOK: true},
		{in: "/a/../b", want: "/b", wantOK: true},
		{in: "?only=query", want: "/", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizePath(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeToken(t *testing.T) {
	tok, ok := NormalizeToken("  demo ")
	assert.True(t, ok)
	assert.Equal(t, "demo", tok)

	_, ok = NormalizeToken(" ")
	assert.False(t, ok)
}

func TestResolvePath(t *testing.T) {
	s := func(v string) *string { return &v }

	assert.Equal(t, "/explicit", ResolvePath(s("/explicit"), s("/host"), s("/ctx"), "/frame"))
	assert.Equal(t, "/host", ResolvePath(nil, s("/host"), s("/ctx"), "/frame"))
	assert.Equal(t, "/ctx", ResolvePath(nil, s(""), s("/ctx"), "/frame"))
	assert.Equal(t, "/frame", ResolvePath(nil, nil, nil, "/frame"))
	assert.Equal(t, "/", ResolvePath(nil, nil, nil, ""))
}

func TestActionDefaultStatus(t *testing.T) {
	assert.Equal(t, StatusDraft, ActionUpdate.DefaultStatus())
	assert.Equal(t, StatusPaused, ActionReset.DefaultStatus())
	assert.Equal(t, StatusDraft, Action("").DefaultStatus())
}

func TestPublicConfigHidesControlToken(t *testing.T) {
	cfg := DemoConfig()
	assert.NotNil(t, cfg.ControlToken)
	assert.Nil(t, cfg.Public().ControlToken)
	assert.NotNil(t, cfg.ControlToken, "original untouched")
}
