package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
	"github.com/sirupsen/logrus"
)

// NATSClient publishes lifecycle events to NATS Streaming
type NATSClient struct {
	conn   stan.Conn
	prefix string
	logger *logrus.Logger
}

type Config struct {
	URL           string
	ClusterID     string
	ClientID      string
	SubjectPrefix string
}

func NewNATSClient(cfg Config, logger *logrus.Logger) (*NATSClient, error) {
	// Replicas share a configured client ID; make it unique per process
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, clientID,
		stan.NatsURL(cfg.URL),
		stan.PubAckWait(5*time.Second),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			logger.WithError(reason).Error("NATS Streaming connection lost")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"url":       cfg.URL,
		"cluster":   cfg.ClusterID,
		"client_id": clientID,
	}).Info("Connected to NATS Streaming")

	return &NATSClient{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Subject qualifies a relative subject with the configured prefix
func (nc *NATSClient) Subject(subject string) string {
	if nc.prefix == "" {
		return subject
	}
	return nc.prefix + "." + subject
}

// Publish marshals data as JSON and publishes it under the prefixed subject
func (nc *NATSClient) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	full := nc.Subject(subject)
	if err := nc.conn.Publish(full, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", full, err)
	}

	nc.logger.WithField("subject", full).Debug("Published message")
	return nil
}

func (nc *NATSClient) Close() error {
	if nc.conn != nil {
		return nc.conn.Close()
	}
	return nil
}
