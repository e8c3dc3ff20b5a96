// Package notify provides NotificationSink implementations.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/onesafebet/sdk-go/core/logging"
	"github.com/onesafebet/sdk-go/core/types"
	"go.uber.org/zap"
)

// LogSink writes outcomes to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

var _ types.NotificationSink = (*LogSink)(nil)

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.OrGlobal(logger)}
}

func (s *LogSink) EmitSuccess(message, link string) {
	s.logger.Info(message, zap.String("outcome", "success"), zap.String("link", link))
}

func (s *LogSink) EmitFailure(message string) {
	s.logger.Warn(message, zap.String("outcome", "failure"))
}

// TerminalSink prints outcomes as colored lines.
type TerminalSink struct {
	mu  sync.Mutex
	out io.Writer
	ok  *color.Color
	bad *color.Color
	dim *color.Color
}

var _ types.NotificationSink = (*TerminalSink)(nil)

func NewTerminalSink(out io.Writer) *TerminalSink {
	return &TerminalSink{
		out: out,
		ok:  color.New(color.FgGreen, color.Bold),
		bad: color.New(color.FgRed, color.Bold),
		dim: color.New(color.FgCyan),
	}
}

func (s *TerminalSink) EmitSuccess(message, link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s %s\n", s.ok.Sprint("✓"), message)
	if link != "" {
		fmt.Fprintf(s.out, "  %s\n", s.dim.Sprint(link))
	}
}

func (s *TerminalSink) EmitFailure(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s %s\n", s.bad.Sprint("✗"), message)
}

// Multi fans every outcome out to all sinks in order.
type Multi []types.NotificationSink

var _ types.NotificationSink = Multi(nil)

func (m Multi) EmitSuccess(message, link string) {
	for _, s := range m {
		if s != nil {
			s.EmitSuccess(message, link)
		}
	}
}

func (m Multi) EmitFailure(message string) {
	for _, s := range m {
		if s != nil {
			s.EmitFailure(message)
		}
	}
}
