package log

import (
	"io"
	stdlog "log"

	"github.com/hashicorp/go-hclog"
	"github.com/rs/zerolog"
)

// HCLogAdapter satisfies hclog.Logger by forwarding every call to a
// zerolog.Logger, so hashicorp/raft's internal logging (raft.Config.Logger
// wants an hclog.Logger) ends up in the same sink and format as the rest
// of the node instead of opening a second, differently-shaped log stream.
type HCLogAdapter struct {
	logger      zerolog.Logger
	name        string
	impliedArgs []interface{}
}

// NewHCLogAdapter wraps logger for use as raft.Config.Logger.
func NewHCLogAdapter(logger zerolog.Logger, name string) *HCLogAdapter {
	return &HCLogAdapter{logger: logger.With().Str("component", name).Logger(), name: name}
}

func (a *HCLogAdapter) log(level hclog.Level, msg string, args ...interface{}) {
	var ev *zerolog.Event
	switch level {
	case hclog.Trace, hclog.Debug:
		ev = a.logger.Debug()
	case hclog.Warn:
		ev = a.logger.Warn()
	case hclog.Error:
		ev = a.logger.Error()
	default:
		ev = a.logger.Info()
	}
	allArgs := append(append([]interface{}{}, a.impliedArgs...), args...)
	for i := 0; i+1 < len(allArgs); i += 2 {
		key, ok := allArgs[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, allArgs[i+1])
	}
	ev.Msg(msg)
}

func (a *HCLogAdapter) Log(level hclog.Level, msg string, args ...interface{}) { a.log(level, msg, args...) }
func (a *HCLogAdapter) Trace(msg string, args ...interface{})                  { a.log(hclog.Trace, msg, args...) }
func (a *HCLogAdapter) Debug(msg string, args ...interface{})                  { a.log(hclog.Debug, msg, args...) }
func (a *HCLogAdapter) Info(msg string, args ...interface{})                   { a.log(hclog.Info, msg, args...) }
func (a *HCLogAdapter) Warn(msg string, args ...interface{})                   { a.log(hclog.Warn, msg, args...) }
func (a *HCLogAdapter) Error(msg string, args ...interface{})                  { a.log(hclog.Error, msg, args...) }

func (a *HCLogAdapter) IsTrace() bool { return a.logger.GetLevel() <= zerolog.DebugLevel }
func (a *HCLogAdapter) IsDebug() bool { return a.logger.GetLevel() <= zerolog.DebugLevel }
func (a *HCLogAdapter) IsInfo() bool  { return a.logger.GetLevel() <= zerolog.InfoLevel }
func (a *HCLogAdapter) IsWarn() bool  { return a.logger.GetLevel() <= zerolog.WarnLevel }
func (a *HCLogAdapter) IsError() bool { return a.logger.GetLevel() <= zerolog.ErrorLevel }

func (a *HCLogAdapter) ImpliedArgs() []interface{} { return a.impliedArgs }

func (a *HCLogAdapter) With(args ...interface{}) hclog.Logger {
	next := &HCLogAdapter{logger: a.logger, name: a.name}
	next.impliedArgs = append(append([]interface{}{}, a.impliedArgs...), args...)
	return next
}

func (a *HCLogAdapter) Name() string { return a.name }

func (a *HCLogAdapter) Named(name string) hclog.Logger {
	return &HCLogAdapter{logger: a.logger.With().Str("component", name).Logger(), name: name, impliedArgs: a.impliedArgs}
}

func (a *HCLogAdapter) ResetNamed(name string) hclog.Logger {
	return a.Named(name)
}

func (a *HCLogAdapter) SetLevel(level hclog.Level) {}

func (a *HCLogAdapter) GetLevel() hclog.Level {
	switch a.logger.GetLevel() {
	case zerolog.DebugLevel:
		return hclog.Debug
	case zerolog.WarnLevel:
		return hclog.Warn
	case zerolog.ErrorLevel:
		return hclog.Error
	default:
		return hclog.Info
	}
}

func (a *HCLogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *stdlog.Logger {
	return stdlog.New(a.StandardWriter(opts), "", 0)
}

func (a *HCLogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return Writer{Logger: a.logger}
}
