package loader

import (
	"context"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/hostdoc"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/locator"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/sandbox"
)

const (
	// ScriptSuffix is the path the embed script is served from
	ScriptSuffix = "/widget/embed.js"
	// DebugGlobal is the window global that enables debug events
	DebugGlobal = "HeadlineTesterWidgetDebug"
	// DefaultToken is used when the embed script carries no data-token
	DefaultToken = "demo"
)

// Connector opens the transport to a freshly mounted iframe. It receives the
// iframe's src.
type Connector func(src *url.URL) channel.Transport

// Options configures a Loader
type Options struct {
	Token string
	// ScriptOrigin is the origin the embed script was served from; the
	// iframe is loaded from there
	ScriptOrigin string
	Debug        bool
	Connect      Connector
	Strategies   []locator.Strategy
	Sink         logging.Sink
}

// OptionsFromDocument discovers the embed script element and reads its
// attributes, the page query and inline-script globals.
func OptionsFromDocument(ctx context.Context, doc *hostdoc.Document) Options {
	opts := Options{Token: DefaultToken, ScriptOrigin: origin(doc.URL())}

	script := doc.CurrentScript(ScriptSuffix)
	if script != nil {
		if tok, ok := hostdoc.Attr(script, "data-token"); ok && strings.TrimSpace(tok) != "" {
			opts.Token = strings.TrimSpace(tok)
		}
		if v, ok := hostdoc.Attr(script, "data-debug"); ok && v != "false" && v != "0" {
			opts.Debug = true
		}
		if src, ok := hostdoc.Attr(script, "src"); ok && src != "" {
			if u, err := doc.Resolve(src); err == nil && u.Host != "" {
				opts.ScriptOrigin = origin(u)
			}
		}
	}

	q := doc.URL().Query()
	if q.Get("hltDebug") == "1" || q.Get("debug") == "1" {
		opts.Debug = true
	}
	if !opts.Debug && debugGlobal(ctx, doc) {
		opts.Debug = true
	}
	return opts
}

func debugGlobal(ctx context.Context, doc *hostdoc.Document) bool {
	if v, ok := doc.Global(DebugGlobal); ok {
		return v != "" && v != "false" && v != "0"
	}
	scripts := doc.InlineScripts()
	if len(scripts) == 0 {
		return false
	}
	rt, err := sandbox.New(sandbox.DefaultConfig())
	if err != nil {
		return false
	}
	rt.Run(ctx, scripts...)
	return rt.Truthy(DebugGlobal)
}

func origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
