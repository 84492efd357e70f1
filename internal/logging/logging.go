// Package logging constructs the process's zap logger and the named
// per-component children every other package receives, the structured
// continuation of the teacher's one-*log.Logger-per-component
// convention.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger at the given debug level: 0 maps to
// production (info and above, JSON encoding), 1 to info with a
// console encoder, 2 and above to debug with a console encoder and
// caller annotations.
func New(debugLevel int) (*zap.Logger, error) {
	var cfg zap.Config
	switch {
	case debugLevel <= 0:
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if debugLevel >= 2 {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// Named returns a sugared child logger scoped to component, mirroring
// the teacher's log.New(os.Stdout, "["+name+"] ", ...) convention.
func Named(base *zap.Logger, component string) *zap.SugaredLogger {
	return base.Named(component).Sugar()
}
