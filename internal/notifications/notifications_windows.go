//go:build windows

package notifications

import (
	"fmt"

	"github.com/go-toast/toast"
)

// NotifyReviewReady announces an agent awaiting accept/reject.
func (n *Notifier) NotifyReviewReady(agentID, task string) error {
	notification := toast.Notification{
		AppID:   n.appID,
		Title:   "Agent ready for review",
		Message: fmt.Sprintf("%s finished: %s", agentID, task),
		Audio:   toast.IM,
	}
	return notification.Push()
}

// NotifyErrored announces a failed agent.
func (n *Notifier) NotifyErrored(agentID, message string) error {
	notification := toast.Notification{
		AppID:   n.appID,
		Title:   "Agent errored",
		Message: fmt.Sprintf("%s: %s", agentID, message),
		Audio:   toast.Default,
	}
	return notification.Push()
}
