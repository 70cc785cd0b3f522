// Package notify posts desktop notifications for screen-share endings the
// user did not initiate from screencheck itself.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"github.com/screencheck/screencheck/internal/screenshare"
)

const (
	appName = "screencheck"
	// queueSize bounds notifications waiting for a slow daemon; extras are
	// dropped.
	queueSize = 8
)

type note struct{ title, message string }

// Notifier is a screenshare.Observer. It notifies when the platform ends an
// active share and when capture permission is denied. Notifications are
// posted from a background goroutine; StateChanged never waits on them.
type Notifier struct {
	logger *zap.SugaredLogger
	send   func(title, message string) error

	mu     sync.Mutex
	closed bool
	queue  chan note
	done   chan struct{}
}

func New(logger *zap.SugaredLogger) *Notifier {
	beeep.AppName = appName
	return newNotifier(logger, func(title, message string) error {
		return beeep.Notify(title, message, "")
	})
}

func newNotifier(logger *zap.SugaredLogger, send func(title, message string) error) *Notifier {
	n := &Notifier{
		logger: logger.Named("notify"),
		send:   send,
		queue:  make(chan note, queueSize),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) StateChanged(s screenshare.Snapshot) {
	title, message, ok := notification(s)
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- note{title, message}:
	default:
		n.logger.Warnw("Notification queue full, dropping notification", "title", title)
	}
}

// Close posts the queued notifications and stops the worker.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		if err := n.send(msg.title, msg.message); err != nil {
			n.logger.Warnw("Failed to post notification", "title", msg.title, "error", err)
			continue
		}
		n.logger.Debugw("Posted notification", "title", msg.title)
	}
}

// notification picks the text for s, if s warrants one.
func notification(s screenshare.Snapshot) (title, message string, ok bool) {
	switch {
	case s.Status == screenshare.Stopped && s.EndedBy == screenshare.EndedByPlatform:
		return "Screen sharing ended", "The system stopped the screen share.", true
	case s.Status == screenshare.Denied:
		msg := "Screen sharing permission was denied."
		if s.ErrorMessage != nil {
			msg = *s.ErrorMessage
		}
		return "Screen sharing blocked", msg, true
	}
	return "", "", false
}
