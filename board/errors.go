package board

// Severity classifies user-facing notifications.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notifier is the user-facing error channel. Besides the reconciled task
// list it is the engine's only output.
type Notifier interface {
	Notify(severity Severity, message string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Severity, string) {}
