package staging

import (
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"
	"go.uber.org/zap"

	"github.com/racetrail/ingest-cli/internal/config"
)

// Dial connects to the Temporal frontend configured in cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    zapLogger{l: zap.L().Sugar()},
	})
	if err != nil {
		return nil, eris.Wrap(err, "staging: dial temporal")
	}
	return c, nil
}

// zapLogger adapts the global zap logger to the Temporal SDK logger.
type zapLogger struct {
	l *zap.SugaredLogger
}

var _ sdklog.Logger = zapLogger{}

func (z zapLogger) Debug(msg string, keyvals ...interface{}) { z.l.Debugw(msg, keyvals...) }
func (z zapLogger) Info(msg string, keyvals ...interface{})  { z.l.Infow(msg, keyvals...) }
func (z zapLogger) Warn(msg string, keyvals ...interface{})  { z.l.Warnw(msg, keyvals...) }
func (z zapLogger) Error(msg string, keyvals ...interface{}) { z.l.Errorw(msg, keyvals...) }
