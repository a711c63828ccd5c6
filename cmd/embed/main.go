package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8000", "Headline Tester server base URL")
	page := flag.String("page", "", "Host page URL or file (defaults to <server>/demo/)")
	pageURL := flag.String("page-url", "", "URL to report for a page read from a file")
	controlToken := flag.String("control-token", "", "Widget control token used when saving experiments")
	debug := flag.Bool("debug", false, "Enable loader and widget debug events")
	flag.Parse()

	logCfg := logging.ConfigFor("info", true)
	if *debug {
		logCfg.Level = "debug"
	}
	logCfg.OutputPaths = []string{"stderr"}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHarness(ctx, harnessConfig{
		ServerURL:    *serverURL,
		Page:         *page,
		PageURL:      *pageURL,
		ControlToken: *controlToken,
		Debug:        *debug,
		Out:          os.Stdout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to start harness", zap.Error(err))
	}
	defer h.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprintln(os.Stdout, "Type a command (show, open, hide, chat, close, apply <text>, reset, rewrite [text], size <w> <h>, status, html, quit)")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(os.Stdout, err)
				continue
			}
			if cmd.Name == "" {
				continue
			}
			if cmd.Name == cmdQuit {
				return
			}
			h.Execute(cmd)
		}
	}
}
