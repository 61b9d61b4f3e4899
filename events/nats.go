package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"deadswitch/logs"
	"deadswitch/vm"
)

// conn 是 *nats.Conn 上用到的部分
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher 以 JSON 发布到 <prefix>.receipt / <prefix>.warning / <prefix>.expired
type NATSPublisher struct {
	conn   conn
	prefix string
	Logger logs.Logger
}

// NewNATSPublisher 连接 NATS 服务器
func NewNATSPublisher(url, prefix string, logger logs.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("deadswitch"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := newNATSPublisher(nc, prefix, logger)
	p.Logger.Info("[events] NATS publisher connected to %s, subject prefix %q", url, p.prefix)
	return p, nil
}

func newNATSPublisher(c conn, prefix string, logger logs.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "deadswitch"
	}
	if logger == nil {
		logger = logs.NewNodeLogger("events", -1)
	}
	return &NATSPublisher{conn: c, prefix: prefix, Logger: logger}
}

func (p *NATSPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *NATSPublisher) publish(kind string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}
	if err := p.conn.Publish(p.Subject(kind), data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}
	p.Logger.Debug("[events] published %s (%d bytes)", p.Subject(kind), len(data))
	return nil
}

func (p *NATSPublisher) PublishReceipt(rc *vm.Receipt) error {
	return p.publish("receipt", rc)
}

func (p *NATSPublisher) PublishWarning(w *VaultWarning) error {
	return p.publish("warning", w)
}

func (p *NATSPublisher) PublishExpired(e *VaultExpired) error {
	return p.publish("expired", e)
}

// Close 先把缓冲的消息发完再断开
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
