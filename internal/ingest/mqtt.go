// internal/ingest/mqtt.go
package ingest

import (
	"context"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"geofence-gateway/internal/config"
	"geofence-gateway/internal/data"
)

const disconnectQuiesceMs = 250

// Subscriber feeds readings and heartbeats published over MQTT into the
// pipeline. Topics carry the device id: radar/{deviceId}/live.
type Subscriber struct {
	client   mqtt.Client
	cfg      config.MQTTConfig
	pipeline *Pipeline
	parser   *data.Parser
	logger   *zap.Logger
}

// NewSubscriber connects to the broker. Reconnects are handled by the client.
func NewSubscriber(cfg config.MQTTConfig, pipeline *Pipeline, parser *data.Parser, logger *zap.Logger) (*Subscriber, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Subscriber{
		client:   client,
		cfg:      cfg,
		pipeline: pipeline,
		parser:   parser,
		logger:   logger,
	}, nil
}

// Start subscribes to the live and heartbeat topics.
func (s *Subscriber) Start() error {
	subs := map[string]func(topic string, payload []byte) error{
		s.cfg.TopicLive:      s.handleLive,
		s.cfg.TopicHeartbeat: s.handleHeartbeat,
	}
	for topic, handler := range subs {
		h := handler
		token := s.client.Subscribe(topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if err := h(msg.Topic(), msg.Payload()); err != nil {
				s.logger.Warn("Dropped MQTT message",
					zap.String("topic", msg.Topic()),
					zap.Error(err),
				)
			}
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
		}
	}
	s.logger.Info("MQTT subscriber started",
		zap.String("broker", s.cfg.Broker),
		zap.String("live_topic", s.cfg.TopicLive),
		zap.String("heartbeat_topic", s.cfg.TopicHeartbeat),
	)
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if token := s.client.Unsubscribe(s.cfg.TopicLive, s.cfg.TopicHeartbeat); token.Wait() && token.Error() != nil {
		s.logger.Warn("Failed to unsubscribe", zap.Error(token.Error()))
	}
	s.client.Disconnect(disconnectQuiesceMs)
	s.logger.Info("MQTT subscriber stopped")
}

func (s *Subscriber) handleLive(topic string, payload []byte) error {
	deviceID, err := deviceFromTopic(topic)
	if err != nil {
		return err
	}
	in, err := s.parser.ParseLive(payload)
	if err != nil {
		return err
	}
	in.DeviceID = deviceID
	s.pipeline.Ingest(context.Background(), in)
	return nil
}

func (s *Subscriber) handleHeartbeat(topic string, _ []byte) error {
	deviceID, err := deviceFromTopic(topic)
	if err != nil {
		return err
	}
	s.pipeline.Heartbeat(context.Background(), deviceID)
	return nil
}

// deviceFromTopic extracts the second topic level.
func deviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[1], nil
}
