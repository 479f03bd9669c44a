package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/vrmapi/pkg/node"
)

const mqttPublishTimeout = 10 * time.Second

// mqttPublisher is the part of mqtt.Client the sink uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes node outputs under {prefix}/{node}/{topic} and the status
// line, retained, under {prefix}/{node}/status.
type MQTT struct {
	client mqttPublisher
	prefix string
	qos    byte
}

// NewMQTT wraps an already connected client.
func NewMQTT(client mqttPublisher, prefix string, qos byte) *MQTT {
	return &MQTT{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

type mqttConfig struct {
	broker   *string
	clientID *string
	username *string
	password *string
	prefix   *string
	qos      *string
}

func configuredMQTT() *mqttConfig {
	return &mqttConfig{
		broker:   lflag.String("mqtt-broker", "tcp://127.0.0.1:1883", "MQTT broker URL"),
		clientID: lflag.String("mqtt-client-id", "vrmapi", "MQTT client id"),
		username: lflag.String("mqtt-username", "", "MQTT username"),
		password: lflag.String("mqtt-password", "", "MQTT password"),
		prefix:   lflag.String("mqtt-topic-prefix", "vrm", "Prefix of published MQTT topics"),
		qos:      lflag.String("mqtt-qos", "0", "MQTT QoS of published messages (0, 1 or 2)"),
	}
}

func (c *mqttConfig) connect() (*MQTT, error) {
	qos, err := strconv.ParseUint(*c.qos, 10, 8)
	if err != nil || qos > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %q", *c.qos)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(*c.broker).
		SetClientID(*c.clientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if *c.username != "" {
		opts.SetUsername(*c.username)
	}
	if *c.password != "" {
		opts.SetPassword(*c.password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", *c.broker, token.Error())
	}
	return NewMQTT(client, *c.prefix, byte(qos)), nil
}

func (m *MQTT) topic(name, suffix string) string {
	return m.prefix + "/" + name + "/" + strings.ReplaceAll(suffix, " ", "/")
}

func (m *MQTT) Publish(ctx context.Context, name string, res node.Result) error {
	for _, out := range res.Outputs {
		if out == nil {
			continue
		}
		if err := m.publish(m.topic(name, out.Topic), false, []byte(out.Payload)); err != nil {
			return err
		}
	}

	status, err := json.Marshal(res.Status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return m.publish(m.topic(name, "status"), true, status)
}

func (m *MQTT) publish(topic string, retained bool, payload []byte) error {
	token := m.client.Publish(topic, m.qos, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
