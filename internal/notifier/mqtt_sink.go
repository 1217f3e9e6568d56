package notifier

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/adithyakrish0/medguardian/internal/config"
	"github.com/adithyakrish0/medguardian/pkg/models"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTSink publishes verification events to an MQTT broker, one topic per
// event kind under the configured prefix. Acceptances and escalations use
// QoS 1; feedback prompts are fire-and-forget at QoS 0.
type MQTTSink struct {
	client mqtt.Client
	prefix string
}

// NewMQTTSink connects to the broker and returns the sink. The connection
// auto-reconnects; publishes while disconnected are logged and dropped.
func NewMQTTSink(cfg *config.Config) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTTBroker))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", cfg.MQTTBroker).Str("client_id", cfg.MQTTClientID).Msg("MQTT connected")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.MQTTBroker).Msg("MQTT connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout to %s", cfg.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &MQTTSink{client: client, prefix: cfg.MQTTTopicPrefix}, nil
}

// EmitAcceptance implements session.Emitter.
func (m *MQTTSink) EmitAcceptance(ev models.AcceptanceEvent) {
	m.publish(m.prefix+"/acceptances", 1, ev)
}

// EmitEscalation implements session.Emitter.
func (m *MQTTSink) EmitEscalation(ev models.EscalationEvent) {
	m.publish(m.prefix+"/escalations", 1, ev)
}

// EmitFeedback implements session.Emitter.
func (m *MQTTSink) EmitFeedback(ev models.FeedbackPrompt) {
	m.publish(m.prefix+"/feedback", 0, ev)
}

func (m *MQTTSink) publish(topic string, qos byte, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal MQTT payload")
		return
	}

	// Session actors call emitters inline; wait for the broker off the
	// caller's goroutine so a slow broker never stalls a decision.
	token := m.client.Publish(topic, qos, false, data)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Warn().Str("topic", topic).Msg("MQTT publish timeout, event dropped")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed, event dropped")
		}
	}()
}

// Close disconnects from the broker with a short grace period.
func (m *MQTTSink) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		log.Info().Msg("MQTT disconnected")
	}
}
