// SPDX-License-Identifier: MIT
package transport

import (
	"context"

	applog "spectrum/internal/log"
)

// LoggingPublisher writes each payload to the log. It never fails.
type LoggingPublisher struct {
	logger *applog.Logger
}

// NewLoggingPublisher creates a LoggingPublisher that logs under name.
func NewLoggingPublisher(name string) *LoggingPublisher {
	l := applog.Named(name)
	l.Infof("using logging publisher")
	return &LoggingPublisher{logger: l}
}

// Publish logs the payload at info level.
func (lp *LoggingPublisher) Publish(_ context.Context, payload []byte) error {
	lp.logger.Infof("%s", payload)
	return nil
}

// Close is a no-op.
func (lp *LoggingPublisher) Close() error {
	lp.logger.Debugf("close called")
	return nil
}

var _ Publisher = (*LoggingPublisher)(nil)
