package core

type (
	// Logger is any service that can log leveled messages along with arbitrary
	// context arguments.
	Logger interface {
		Enable(enabled bool)
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// Notifier is any service that can surface a system-level notification to
	// the current user (outside the in-app chat surface).
	Notifier interface {
		Notify(title, body string)
	}
)
