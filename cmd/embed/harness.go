package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/conversation"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/frame"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/hostdoc"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/loader"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/widget"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/transport/bridge"
)

const (
	cmdShow    = "show"
	cmdOpen    = "open"
	cmdHide    = "hide"
	cmdChat    = "chat"
	cmdClose   = "close"
	cmdApply   = "apply"
	cmdReset   = "reset"
	cmdRewrite = "rewrite"
	cmdSize    = "size"
	cmdStatus  = "status"
	cmdHTML    = "html"
	cmdQuit    = "quit"
)

// transcriptPoll is how often widget events are rendered to the output
const transcriptPoll = 200 * time.Millisecond

type command struct {
	Name   string
	Text   *string
	Width  float64
	Height float64
}

// parseCommand reads one stdin line. An empty line yields an empty command.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	switch name {
	case cmdShow, cmdOpen, cmdHide, cmdChat, cmdClose, cmdReset, cmdStatus, cmdHTML, cmdQuit:
		return command{Name: name}, nil
	case "exit":
		return command{Name: cmdQuit}, nil
	case cmdApply:
		if rest == "" {
			return command{}, errors.New("usage: apply <text>")
		}
		return command{Name: name, Text: &rest}, nil
	case cmdRewrite:
		if rest == "" {
			return command{Name: name}, nil
		}
		return command{Name: name, Text: &rest}, nil
	case cmdSize:
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return command{}, errors.New("usage: size <width> <height>")
		}
		w, errW := strconv.ParseFloat(fields[0], 64)
		h, errH := strconv.ParseFloat(fields[1], 64)
		if errW != nil || errH != nil || w < 0 || h < 0 {
			return command{}, errors.New("usage: size <width> <height>")
		}
		return command{Name: name, Width: w, Height: h}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", name)
	}
}

type harnessConfig struct {
	ServerURL    string
	Page         string
	PageURL      string
	ControlToken string
	Debug        bool
	Out          io.Writer
}

// harness runs a loader and a widget controller on two frame loops joined
// by a bridge session
type harness struct {
	cfg     harnessConfig
	logger  *logging.Logger
	http    *resty.Client
	store   *experiment.Client
	tracer  *tracing.Tracer
	ctx     context.Context
	cancel  context.CancelFunc
	session string
	// pageOrigin is fixed once the page is parsed
	pageOrigin string

	hostLoop   *frame.Loop
	widgetLoop *frame.Loop
	transcript *conversation.Transcript

	// owned by hostLoop
	doc    *hostdoc.Document
	loader *loader.Loader
	// owned by widgetLoop
	ctrl *widget.Controller

	mu      sync.Mutex
	clients []*bridge.Client
	wg      sync.WaitGroup
}

func newHarness(parent context.Context, cfg harnessConfig, logger *logging.Logger) (*harness, error) {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	base := strings.TrimRight(cfg.ServerURL, "/")
	if cfg.Page == "" {
		cfg.Page = base + "/demo/"
	}

	tracer := tracing.New("embed", logger.Logger)
	span, ctx := tracer.StartSpan(parent, "embed.session")
	span.SetTag("page", cfg.Page)
	ctx, cancel := context.WithCancel(ctx)

	h := &harness{
		cfg:        cfg,
		logger:     logger.Named("embed"),
		http:       resty.New().SetBaseURL(base).OnBeforeRequest(tracing.RestyMiddleware()),
		tracer:     tracer,
		ctx:        ctx,
		cancel:     cancel,
		hostLoop:   frame.NewLoop(0),
		widgetLoop: frame.NewLoop(0),
		transcript: conversation.New(logging.NewSink(logger, "conversation", cfg.Debug)),
	}
	h.store = experiment.NewClient(experiment.ClientConfig{
		BaseURL:    base,
		Middleware: []resty.RequestMiddleware{tracing.RestyMiddleware()},
	})
	defer span.Finish()

	doc, err := h.fetchPage(ctx)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.doc = doc
	h.pageOrigin = origin(doc.URL())

	session, err := h.createSession(ctx)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.session = session
	span.SetTag("session", session)

	h.wg.Add(3)
	go func() { defer h.wg.Done(); h.hostLoop.Run(ctx) }()
	go func() { defer h.wg.Done(); h.widgetLoop.Run(ctx) }()
	go func() { defer h.wg.Done(); h.pollTranscript(ctx) }()

	h.hostLoop.Post(h.mountLoader)
	return h, nil
}

func (h *harness) fetchPage(ctx context.Context) (*hostdoc.Document, error) {
	if strings.HasPrefix(h.cfg.Page, "http://") || strings.HasPrefix(h.cfg.Page, "https://") {
		resp, err := h.http.R().SetContext(ctx).Get(h.cfg.Page)
		if err != nil {
			return nil, fmt.Errorf("fetch page: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch page: status %d", resp.StatusCode())
		}
		u, err := url.Parse(h.cfg.Page)
		if err != nil {
			return nil, fmt.Errorf("page url: %w", err)
		}
		return hostdoc.Parse(bytes.NewReader(resp.Body()), resp.Header().Get("Content-Type"), u)
	}

	data, err := os.ReadFile(h.cfg.Page)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	pageURL := h.cfg.PageURL
	if pageURL == "" {
		pageURL = h.cfg.ServerURL + "/"
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}
	return hostdoc.Parse(bytes.NewReader(data), "", u)
}

func (h *harness) createSession(ctx context.Context) (string, error) {
	var body struct {
		Session string `json:"session"`
	}
	resp, err := h.http.R().SetContext(ctx).SetResult(&body).Post("/bridge/sessions")
	if err != nil {
		return "", fmt.Errorf("create bridge session: %w", err)
	}
	if resp.IsError() || !bridge.ValidSession(body.Session) {
		return "", fmt.Errorf("create bridge session: status %d", resp.StatusCode())
	}
	return body.Session, nil
}

// mountLoader runs on the host loop
func (h *harness) mountLoader() {
	opts := loader.OptionsFromDocument(h.ctx, h.doc)
	if h.cfg.Debug {
		opts.Debug = true
	}
	opts.Sink = logging.NewSink(h.logger, "loader", opts.Debug)
	opts.Connect = h.connectHost

	l, err := loader.New(h.doc, opts)
	if err != nil {
		h.logger.Error("Failed to start loader", zap.Error(err))
		return
	}
	h.loader = l
	h.printf("loader ready for token %q, widget at %s\n", l.Token(), l.WidgetURL())
	h.doc.MarkLoaded()
}

// connectHost runs on the host loop when the loader mounts the iframe. It
// joins the bridge as the host window and boots the widget for src.
func (h *harness) connectHost(src *url.URL) channel.Transport {
	u, err := bridge.URL(h.cfg.ServerURL, h.session, bridge.RoleHost, h.pageOrigin)
	if err != nil {
		h.logger.Error("Invalid bridge URL", zap.Error(err))
		return nil
	}
	client, err := bridge.Dial(h.ctx, u, bridge.DialOptions{
		Scheduler: h.hostLoop,
		Receive: func(env channel.Envelope) {
			if h.loader != nil {
				h.loader.Receive(env)
			}
		},
		Logger: h.logger,
	})
	if err != nil {
		h.logger.Error("Failed to join bridge as host", zap.Error(err))
		return nil
	}
	h.track(client)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.bootWidget(src)
	}()
	return client
}

// bootWidget plays the iframe page: it loads the widget configuration and
// starts a controller on the widget loop
func (h *harness) bootWidget(src *url.URL) {
	q := src.Query()
	token := q.Get("token")
	path := q.Get("path")
	if path == "" {
		path = "/"
	}

	cfg, err := h.store.Config(h.ctx, token, path)
	if err != nil {
		h.logger.Warn("Falling back to demo widget config", zap.String("token", token), zap.Error(err))
		demo := experiment.DemoConfig()
		cfg = &demo
	}
	if h.cfg.ControlToken != "" {
		tok := h.cfg.ControlToken
		cfg.ControlToken = &tok
	}
	config := *cfg

	h.widgetLoop.Post(func() {
		h.ctrl = widget.New(widget.Options{
			Config:     config,
			Location:   src,
			HostOrigin: h.pageOrigin,
			Persister:  h.store,
			Scheduler:  h.widgetLoop,
			Sink:       logging.NewSink(h.logger, "widget", h.cfg.Debug),
			Context:    h.ctx,
		})

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.connectWidget(src)
		}()
	})
}

func (h *harness) connectWidget(src *url.URL) {
	u, err := bridge.URL(h.cfg.ServerURL, h.session, bridge.RoleFrame, origin(src))
	if err != nil {
		h.logger.Error("Invalid bridge URL", zap.Error(err))
		return
	}
	client, err := bridge.Dial(h.ctx, u, bridge.DialOptions{
		Scheduler: h.widgetLoop,
		Receive:   func(env channel.Envelope) { h.ctrl.Receive(env) },
		Logger:    h.logger,
	})
	if err != nil {
		h.logger.Error("Failed to join bridge as frame", zap.Error(err))
		return
	}
	h.track(client)

	h.widgetLoop.Post(func() {
		h.ctrl.SetTransport(client)
		h.ctrl.Start()
	})
}

func (h *harness) track(c *bridge.Client) {
	h.mu.Lock()
	h.clients = append(h.clients, c)
	h.mu.Unlock()
}

// Execute dispatches a parsed command to the loop that owns its target
func (h *harness) Execute(cmd command) {
	switch cmd.Name {
	case cmdShow, cmdOpen, cmdHide, cmdHTML:
		h.hostLoop.Post(func() { h.onHost(cmd) })
	case cmdStatus:
		h.hostLoop.Post(func() { h.onHost(cmd) })
		h.widgetLoop.Post(func() { h.onWidget(cmd) })
	default:
		h.widgetLoop.Post(func() { h.onWidget(cmd) })
	}
}

func (h *harness) onHost(cmd command) {
	if h.loader == nil {
		h.printf("loader not running\n")
		return
	}
	switch cmd.Name {
	case cmdShow:
		h.loader.Show(loader.ShowOptions{})
	case cmdOpen:
		h.loader.Show(loader.ShowOptions{Open: true})
	case cmdHide:
		h.loader.Hide()
	case cmdHTML:
		h.printf("%s\n", h.doc.String())
	case cmdStatus:
		h.printf("loader: ready=%t mode=%s visible=%t experimentReady=%t site=%q\n",
			h.loader.Ready(), h.loader.Mode(), h.loader.Visible(), h.loader.ExperimentReady(), h.loader.SiteName())
	}
}

func (h *harness) onWidget(cmd command) {
	if h.ctrl == nil {
		h.printf("widget not connected yet\n")
		return
	}
	var err error
	switch cmd.Name {
	case cmdChat:
		h.ctrl.OpenChat()
	case cmdClose:
		h.ctrl.Close()
	case cmdApply:
		err = h.ctrl.Apply(*cmd.Text)
	case cmdReset:
		err = h.ctrl.Reset()
	case cmdRewrite:
		err = h.ctrl.RequestRewrite(cmd.Text)
	case cmdSize:
		h.ctrl.ReportDimensions(cmd.Width, cmd.Height)
	case cmdStatus:
		head := h.ctrl.Headline()
		h.printf("widget: mode=%s headline=%q status=%s experiment=%s busy=%t\n",
			h.ctrl.Mode(), head.Baseline(), h.ctrl.HeadlineStatus(), h.ctrl.ExperimentStatus(), h.ctrl.Busy())
	}
	if err != nil {
		h.printf("%s: %v\n", cmd.Name, err)
	}
	h.drain()
}

// drain runs on the widget loop
func (h *harness) drain() {
	if h.ctrl == nil {
		return
	}
	for _, entry := range h.transcript.Drain(h.ctrl) {
		h.printf("[%s] %s\n", entry.Role, entry.Text)
	}
}

func (h *harness) pollTranscript(ctx context.Context) {
	ticker := time.NewTicker(transcriptPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.widgetLoop.Post(h.drain)
		}
	}
}

func (h *harness) printf(format string, args ...any) {
	fmt.Fprintf(h.cfg.Out, format, args...)
}

// Close stops both loops and leaves the bridge session
func (h *harness) Close() {
	h.cancel()
	h.mu.Lock()
	clients := h.clients
	h.clients = nil
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.Close()
	}
	h.wg.Wait()
	h.tracer.Close()
}

func origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
