package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"ttharvest/pkg/config"
	"ttharvest/pkg/models"
)

const appName = "ttharvest"

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	cmd := exec.Command("notify-send", "--app-name="+appName, title, message)
	return cmd.Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("%s").Show($toast)
	`, title, message, appName)

	cmd := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	return cmd.Run()
}

// Notifier announces finished runs on the console and, when enabled, the desktop
type Notifier struct {
	sender NotificationSender
	cfg    config.NotificationConfig
}

// NewNotifier creates a Notifier for the current platform
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	var sender NotificationSender

	if cfg.Enabled {
		switch runtime.GOOS {
		case "linux":
			sender = &LinuxNotificationSender{}
		case "darwin":
			sender = &MacOSNotificationSender{}
		case "windows":
			sender = &WindowsNotificationSender{}
		}
	}

	return &Notifier{sender: sender, cfg: cfg}
}

// NewNotifierWith creates a Notifier with an explicit sender
func NewNotifierWith(sender NotificationSender, cfg config.NotificationConfig) *Notifier {
	return &Notifier{sender: sender, cfg: cfg}
}

// NotifyRun reports the outcome of a run
func (n *Notifier) NotifyRun(s *models.Summary, runErr error) {
	if runErr != nil {
		if n.cfg.OnFailure {
			n.SendError(appName+": run interrupted", runErr.Error())
		}
		return
	}
	if !n.cfg.OnComplete {
		return
	}

	msg := RunMessage(s)
	if len(s.Failed()) > 0 {
		n.SendError(appName+": run finished with failures", msg)
		return
	}
	n.SendSuccess(appName+": run finished", msg)
}

// RunMessage is the one-line notification body for a run
func RunMessage(s *models.Summary) string {
	parts := []string{
		fmt.Sprintf("%d new", len(s.Succeeded())),
		fmt.Sprintf("%d skipped", len(s.Skipped())),
		fmt.Sprintf("%d failed", len(s.Failed())),
	}
	return strings.Join(parts, ", ")
}

// SendNotification sends a desktop notification and prints to console
func (n *Notifier) SendNotification(title, message string) {
	printf("\n%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError sends an error notification
func (n *Notifier) SendError(title, message string) {
	printf("\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess sends a success notification
func (n *Notifier) SendSuccess(title, message string) {
	printf("\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender != nil {
		// notifications are best effort
		_ = n.sender.Send(title, message)
	}
}
