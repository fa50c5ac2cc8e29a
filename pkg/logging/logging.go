// Package logging provides the per-component structured loggers used
// across the node, following the prefixed-logrus-entry convention.
package logging

import (
	logger "github.com/sirupsen/logrus"
)

// Configure sets the process-wide log level. Called once at startup
// from the loaded NodeConfig.
func Configure(level string) {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		lvl = logger.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logger.TextFormatter{FullTimestamp: true})
}

// For returns a logger scoped to a single component, e.g.
// logging.For("mempool").Warnf("dropped tx: %v", err).
func For(component string) *logger.Entry {
	return logger.WithFields(logger.Fields{"prefix": component})
}
