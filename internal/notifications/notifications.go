// internal/notifications/notifications.go
//
// Desktop notifications for the human review loop: a toast when an
// agent is waiting on review and when one errors out.
package notifications

import "runtime"

// Notifier raises desktop toasts. Only Windows has a native backend;
// other platforms return errUnsupported, which callers treat as a
// silent no-op.
type Notifier struct {
	appID string
}

// New creates a notifier with the given application id.
func New(appID string) *Notifier {
	if appID == "" {
		appID = "Cairn"
	}
	return &Notifier{appID: appID}
}

// Supported reports whether this platform can show toasts.
func Supported() bool {
	return runtime.GOOS == "windows"
}
