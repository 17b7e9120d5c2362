package conductor

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the Logger interface. Arguments are
// interpreted as alternating keys and values; a trailing key without a value is
// logged under "EXTRA_VALUE_AT_END".
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps the given zerolog logger.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

func (l *ZerologLogger) Info(msg string, args ...any)  { l.log(l.logger.Info(), msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.log(l.logger.Error(), msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.log(l.logger.Warn(), msg, args) }
func (l *ZerologLogger) Debug(msg string, args ...any) { l.log(l.logger.Debug(), msg, args) }

func (l *ZerologLogger) log(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			event = event.Interface("EXTRA_VALUE_AT_END", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			event = event.AnErr(key, v)
		case fmt.Stringer:
			event = event.Stringer(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	event.Msg(msg)
}
