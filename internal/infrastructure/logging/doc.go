// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// It also defines Sink, the debug event interface the loader and widget
// controllers report into. A sink built with NewSink(logger, "loader", false)
// drops everything, so controllers never branch on a debug flag themselves.
//
// Example Usage:
//
//	logger, err := logging.New(logging.ConfigFor("", devMode))
//	if err != nil {
//		return err
//	}
//	logger.Info("Server starting", zap.String("port", "8000"))
//
//	sink := logging.NewSink(logger, "widget", debugEnabled)
//	sink.Event("widget.mode.post", zap.String("mode", "chat"))
package logging
