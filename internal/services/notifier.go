package services

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/metrics"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// Notifier delivers lifecycle events after the owning transaction commits.
// Delivery is best effort and must never block or fail the caller.
type Notifier interface {
	Notify(subject string, event interface{})
}

// Publisher is the transport a PublishingNotifier hands events to
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// PublishingNotifier publishes events asynchronously through a Publisher
type PublishingNotifier struct {
	publisher Publisher
	logger    *logrus.Logger
}

// NewPublishingNotifier creates a notifier backed by publisher
func NewPublishingNotifier(publisher Publisher, logger *logrus.Logger) *PublishingNotifier {
	return &PublishingNotifier{publisher: publisher, logger: logger}
}

// Notify publishes in the background; failures are logged and counted
func (n *PublishingNotifier) Notify(subject string, event interface{}) {
	go func() {
		if err := n.publisher.Publish(subject, event); err != nil {
			metrics.EventsPublished.WithLabelValues(subject, "error").Inc()
			n.logger.WithError(err).WithField("subject", subject).Warn("Failed to publish lifecycle event")
			return
		}
		metrics.EventsPublished.WithLabelValues(subject, "ok").Inc()
	}()
}

// LogNotifier writes events to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(subject string, event interface{}) {
	metrics.EventsPublished.WithLabelValues(subject, "logged").Inc()
	n.logger.WithFields(logrus.Fields{
		"subject": subject,
		"event":   event,
	}).Info("Lifecycle event")
}
