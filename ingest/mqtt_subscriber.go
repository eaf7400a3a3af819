package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"clasutil/config"
	"clasutil/models"
	"clasutil/services"
	"clasutil/utils"
)

const (
	subscribeQoS  = 1
	recordTimeout = 5 * time.Second
)

// Recorder stores a validated detector payload.
type Recorder interface {
	Record(ctx context.Context, in services.ObservationInput) (*models.Observation, error)
}

// Subscriber consumes detector status messages from an MQTT broker and
// records them as observations.
type Subscriber struct {
	client   mqtt.Client
	topic    string
	recorder Recorder
	logger   *utils.Logger
}

// NewClient builds (but does not connect) a paho client from cfg.
func NewClient(cfg *config.Config, logger *utils.Logger) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("[mqtt] Connection lost: %v", err)
	})
	return mqtt.NewClient(opts)
}

func NewSubscriber(client mqtt.Client, topic string, recorder Recorder, logger *utils.Logger) *Subscriber {
	return &Subscriber{client: client, topic: topic, recorder: recorder, logger: logger}
}

// Start connects to the broker and subscribes to the status topic.
func (s *Subscriber) Start() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect: %w", token.Error())
	}

	token := s.client.Subscribe(s.topic, subscribeQoS, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
			s.logger.Warn("[mqtt] Dropped message on %s: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		s.client.Disconnect(250)
		return fmt.Errorf("mqtt: subscribe %s: %w", s.topic, token.Error())
	}

	s.logger.Info("[mqtt] Subscribed to %s", s.topic)
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.logger.Warn("[mqtt] Unsubscribe %s: %v", s.topic, token.Error())
	}
	s.client.Disconnect(250)
}

// HandleMessage decodes one detector payload and records it. When the payload
// has no room name, the segment matched by the topic wildcard is used.
func (s *Subscriber) HandleMessage(topic string, payload []byte) error {
	var in services.ObservationInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(in.RoomName) == "" {
		in.RoomName = roomFromTopic(s.topic, topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if _, err := s.recorder.Record(ctx, in); err != nil {
		return err
	}
	return nil
}

// roomFromTopic returns the topic level matched by the first single-level
// wildcard of pattern, or "" if the topic does not line up with it.
func roomFromTopic(pattern, topic string) string {
	pLevels := strings.Split(pattern, "/")
	tLevels := strings.Split(topic, "/")
	if len(pLevels) != len(tLevels) {
		return ""
	}
	room := ""
	found := false
	for i, p := range pLevels {
		switch {
		case p == "+":
			if !found {
				room, found = tLevels[i], true
			}
		case p != tLevels[i]:
			return ""
		}
	}
	return room
}
