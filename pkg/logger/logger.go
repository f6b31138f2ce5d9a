package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const FormatConsole = "console"

// Options configures the structured logger.
type Options struct {
	ServiceName string
	// InstanceID tags every line with the emitting replica.
	InstanceID string
	// Level is a zerolog level name; empty or unknown means info.
	Level     string
	WarnStack bool
	// Format is "json" (default) or "console".
	Format string
	Output io.Writer
}

// Logger writes JSON lines enriched with the fields carried by the context.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

// field is one link of an immutable, context-carried field list. Newer links
// point at older ones so enriching a context never mutates its parent.
type field struct {
	prev  *field
	key   string
	value any
}

type fieldsKey struct{}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	builder := zerolog.New(out).With().Timestamp().Str("service", opts.ServiceName)
	if opts.InstanceID != "" {
		builder = builder.Str("instance", opts.InstanceID)
	}
	return &Logger{
		base:      builder.Logger().Level(parseLevel(opts.Level)),
		warnStack: opts.WarnStack,
	}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

func parseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	prev, _ := ctx.Value(fieldsKey{}).(*field)
	return context.WithValue(ctx, fieldsKey{}, &field{prev: prev, key: key, value: value})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	for key, value := range fields {
		ctx = l.WithField(ctx, key, value)
	}
	return ctx
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

// WithPaymentReference tags lines with the RentWise reference of the payment
// being charged or reconciled, the key support uses to trace a payment.
func (l *Logger) WithPaymentReference(ctx context.Context, reference string) context.Context {
	return l.WithField(ctx, "payment_reference", reference)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.emit(ctx, l.base.Info(), msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.base.Warn()
	if l.warnStack && event != nil {
		event = event.Str("stack", stackTrace())
	}
	l.emit(ctx, event, msg)
}

// Error always records the stack of the caller.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.base.Error()
	if event != nil {
		event = event.Err(err).Str("stack", stackTrace())
	}
	l.emit(ctx, event, msg)
}

func (l *Logger) emit(ctx context.Context, event *zerolog.Event, msg string) {
	if event == nil {
		return
	}
	if ctx != nil {
		head, _ := ctx.Value(fieldsKey{}).(*field)
		var chain []*field
		for f := head; f != nil; f = f.prev {
			chain = append(chain, f)
		}
		// oldest first, so a later value for the same key wins in readers that keep the last
		for i := len(chain) - 1; i >= 0; i-- {
			event = event.Interface(chain[i].key, chain[i].value)
		}
	}
	event.Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
