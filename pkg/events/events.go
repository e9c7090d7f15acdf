// Package events publishes domain events to a message broker.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/todo/pkg/core"
	"github.com/nats-io/nats.go"
)

// Publisher delivers domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	// Publish sends payload, JSON encoded, under the given event name
	Publish(ctx context.Context, event string, payload interface{}) error

	// Close flushes pending events and releases the connection
	Close() error
}

// NewNoopPublisher returns a Publisher that drops every event
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }

func (noopPublisher) Close() error { return nil }

// NATSConfig configures the NATS publisher
type NATSConfig struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222"
	URL string

	// SubjectPrefix is prepended to event names. Default: "todo"
	SubjectPrefix string

	// Name is an optional NATS connection name
	Name string

	// FlushTimeout bounds Close's wait for buffered messages. Default: 2s
	FlushTimeout time.Duration
}

// NATSPublisher publishes events as core NATS messages on <prefix>.<event>
type NATSPublisher struct {
	nc           *nats.Conn
	prefix       string
	flushTimeout time.Duration
	logger       core.Logger
}

// NewNATSPublisher connects to NATS. Reconnection is handled by the client;
// messages published while disconnected are buffered.
func NewNATSPublisher(cfg NATSConfig, logger core.Logger) (*NATSPublisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "todo"
	}
	flushTimeout := cfg.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	return &NATSPublisher{
		nc:           nc,
		prefix:       prefix,
		flushTimeout: flushTimeout,
		logger:       logger,
	}, nil
}

// Subject returns the subject an event is published on
func (p *NATSPublisher) Subject(event string) string {
	return p.prefix + "." + event
}

// Publish implements Publisher. The request ID found in ctx travels in the
// X-Request-ID message header.
func (p *NATSPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	if event == "" {
		return &core.Error{Code: core.CodeInvalidInput, Message: "event name cannot be empty"}
	}

	data, err := core.JSONEncode(payload)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.Subject(event))
	msg.Data = data
	if ctx != nil {
		if rid := core.GetRequestID(ctx); rid != "" {
			msg.Header.Set(core.RequestIDHeader, rid)
		}
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Close implements Publisher
func (p *NATSPublisher) Close() error {
	if p.nc.IsClosed() {
		return nil
	}
	if err := p.nc.FlushTimeout(p.flushTimeout); err != nil {
		p.logger.Warnf("nats flush on close: %v", err)
	}
	p.nc.Close()
	return nil
}
