package presenter

import "log/slog"

// ToastLevel is the severity of a toast.
type ToastLevel string

// Toast levels.
const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
)

// Toast is the one user-visible message a command result produces.
type Toast struct {
	Level   ToastLevel `json:"level"`
	Message string     `json:"message"`
	// Retry offers a "try again" action.
	Retry bool `json:"retry,omitempty"`
}

// Notifier shows toasts.
type Notifier interface {
	Notify(t Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(t Toast)

// Notify calls f.
func (f NotifierFunc) Notify(t Toast) { f(t) }

// LogNotifier writes toasts to a logger; used when no UI is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the toast.
func (n LogNotifier) Notify(t Toast) {
	n.Logger.Info("toast", slog.String("level", string(t.Level)), slog.String("message", t.Message), slog.Bool("retry", t.Retry))
}
