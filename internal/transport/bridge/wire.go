// Package bridge carries cross-frame messages over a websocket relay.
//
// A host page and its widget iframe each dial the same bridge session, one
// as RoleHost and one as RoleFrame. The relay forwards every Frame to the
// other role with postMessage semantics: the sender names a target origin,
// the relay stamps the sender's origin and window source, and a target that
// does not match the receiver drops the message silently.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
)

// Role is the window a bridge connection speaks for
type Role string

const (
	RoleHost  Role = "host"
	RoleFrame Role = "frame"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleFrame
}

// Peer returns the role on the other side of the session
func (r Role) Peer() Role {
	if r == RoleHost {
		return RoleFrame
	}
	return RoleHost
}

// Source is how the receiving frame identifies a sender of role r. It
// matches the sources the loader and widget endpoints accept.
func (r Role) Source() string {
	if r == RoleFrame {
		return "widget"
	}
	return "host"
}

// ErrMalformedFrame is returned for bridge frames that do not decode
var ErrMalformedFrame = errors.New("malformed bridge frame")

// Frame is one relayed message. Senders fill TargetOrigin; the relay fills
// Origin and Source before delivery.
type Frame struct {
	Origin       string          `json:"origin,omitempty"`
	Source       string          `json:"source,omitempty"`
	TargetOrigin string          `json:"targetOrigin,omitempty"`
	Data         json.RawMessage `json:"data"`
}

// EncodeFrame serialises f
func EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrMalformedFrame)
	}
	return sonic.Marshal(f)
}

// DecodeFrame parses a frame. Data must be present and valid JSON.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(f.Data) == 0 || string(f.Data) == "null" || !sonic.Valid(f.Data) {
		return Frame{}, fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}
	return f, nil
}

// ValidSession reports whether id can name a bridge session
func ValidSession(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Path is the relay route for a session and role
func Path(session string, role Role) string {
	return "/bridge/" + session + "/" + string(role)
}

// URL builds the websocket URL for joining session as role from a window
// at origin. base is the server's http(s) or ws(s) address.
func URL(base, session string, role Role, origin string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse bridge base: %w", err)
	}
	if !ValidSession(session) {
		return "", fmt.Errorf("invalid bridge session %q", session)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + Path(session, role)
	q := url.Values{}
	if origin != "" {
		q.Set("origin", origin)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
