package logger

import (
	"github.com/golang/glog"
)

// GlogLogger implements the Logger interface using glog with a configurable call depth.
type GlogLogger struct {
	depth int
}

// Debugf is routed to glog's V(2) info stream.
func (logger *GlogLogger) Debugf(msg string, args ...any) {
	if glog.V(2) {
		glog.InfoDepthf(logger.depth, msg, args...)
	}
}

func (logger *GlogLogger) Infof(msg string, args ...any) {
	glog.InfoDepthf(logger.depth, msg, args...)
}

func (logger *GlogLogger) Warnf(msg string, args ...any) {
	glog.WarningDepthf(logger.depth, msg, args...)
}

func (logger *GlogLogger) Errorf(msg string, args ...any) {
	glog.ErrorDepthf(logger.depth, msg, args...)
}

func (logger *GlogLogger) Fatalf(msg string, args ...any) {
	glog.FatalDepthf(logger.depth, msg, args...)
}

func NewGlogLogger() Logger {
	return &GlogLogger{
		depth: 2,
	}
}
