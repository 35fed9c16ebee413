package logsvc

import (
	"log"

	"github.com/literate-limited/beeline/core"
)

// consoleLogger writes leveled messages to a std logger only. Used in DEV/TEST
// mode where Rollbar reporting is unwanted.
type consoleLogger struct {
	std           *log.Logger
	disableOutput bool
}

var _ core.Logger = (*consoleLogger)(nil)

func NewConsoleLogger(std *log.Logger) core.Logger {
	return &consoleLogger{std: std}
}

// NewConsoleLoggerMock returns a silent logger for tests.
func NewConsoleLoggerMock() core.Logger {
	return &consoleLogger{std: log.Default(), disableOutput: true}
}

func (l consoleLogger) Enable(bool) {}

func (l consoleLogger) log(level, msg string, args []interface{}) {
	if l.disableOutput {
		return
	}
	l.std.Printf("%s: %s", level, msg)
	for _, arg := range args {
		l.std.Printf("%+v", arg)
	}
}

func (l consoleLogger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l consoleLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l consoleLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l consoleLogger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }

func (l consoleLogger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	l.std.Fatal(msg)
}
