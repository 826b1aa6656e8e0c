package logging

// Discard is a Logger that drops all messages. It is the default for
// embedded use where the host application owns the log stream.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Errorf(format string, args ...any) {}
func (discardLogger) Warnf(format string, args ...any)  {}
func (discardLogger) Infof(format string, args ...any)  {}
func (discardLogger) Debugf(format string, args ...any) {}
