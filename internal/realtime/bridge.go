// Package realtime mirrors core events onto NATS so external collaborators
// can subscribe without touching the core. The bridge is optional; the
// service runs without it when NATS is unreachable.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/skyward/utm/internal/events"
)

// BridgeConfig holds NATS connection settings.
type BridgeConfig struct {
	NATSURL       string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultBridgeConfig returns the default bridge configuration.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		NATSURL:       nats.DefaultURL,
		SubjectPrefix: "utm.events",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: 10,
	}
}

// Bridge pumps a buffered stream of bus events onto NATS subjects.
type Bridge struct {
	nc           *nats.Conn
	prefix       string
	log          *logrus.Entry
	cancelStream func()
}

// NewBridge connects to NATS and starts forwarding every bus event.
func NewBridge(cfg BridgeConfig, bus *events.Bus, log *logrus.Entry) (*Bridge, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Name("utm-bridge"),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	stream, cancel := bus.Stream(512)
	b := &Bridge{nc: nc, prefix: cfg.SubjectPrefix, log: log, cancelStream: cancel}
	go b.pump(stream)

	log.WithField("url", cfg.NATSURL).Info("NATS bridge connected")
	return b, nil
}

func (b *Bridge) pump(stream <-chan events.Event) {
	for event := range stream {
		b.publish(event)
	}
}

func (b *Bridge) publish(event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", b.prefix, event.Type)
	if err := b.nc.Publish(subject, data); err != nil {
		b.log.WithError(err).WithField("subject", subject).Warn("NATS publish failed")
		return err
	}
	return nil
}

// Close detaches from the bus and drains the NATS connection.
func (b *Bridge) Close() {
	if b.cancelStream != nil {
		b.cancelStream()
	}
	if b.nc != nil {
		b.nc.Drain()
	}
}
