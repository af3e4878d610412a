//go:build !windows

package notifications

import "fmt"

var errUnsupported = fmt.Errorf("toast notifications only supported on Windows")

// NotifyReviewReady announces an agent awaiting accept/reject.
func (n *Notifier) NotifyReviewReady(agentID, task string) error {
	return errUnsupported
}

// NotifyErrored announces a failed agent.
func (n *Notifier) NotifyErrored(agentID, message string) error {
	return errUnsupported
}
