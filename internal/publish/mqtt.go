// Package publish forwards pose results and alerts to an MQTT broker as
// JSON.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/posture.report/internal/alert"
	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/timeutil"
)

var logf = monitoring.Prefixed("MQTT")

// DefaultTopicPrefix is used when Options.TopicPrefix is empty.
const DefaultTopicPrefix = "posture"

// Client is the part of mqtt.Client the sink uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Dial connects to broker, e.g. "tcp://localhost:1883".
func Dial(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, token.Error())
	}
	logf("connected to MQTT broker at %s", broker)
	return client, nil
}

// Options configures an MQTTSink.
type Options struct {
	SessionID   string
	TopicPrefix string
	// PoseInterval bounds how often pose results are published.
	PoseInterval time.Duration
	// PublishTimeout bounds the wait for each publish to complete.
	PublishTimeout time.Duration
	Clock          timeutil.Clock
}

// PoseMessage is the payload published on <prefix>/pose.
type PoseMessage struct {
	SessionID       string          `json:"session_id"`
	TakenUnixNanos  int64           `json:"taken_unix_nanos"`
	TrackingID      int             `json:"tracking_id"`
	Label           string          `json:"label"`
	FallProbability float64         `json:"fall_probability"`
	Text            string          `json:"text"`
	Metrics         posture.Metrics `json:"metrics"`
}

// MQTTSink publishes pose results (throttled, retained) and alerts
// (every one, QoS 1). It implements pipeline.Sink and alert.Publisher.
type MQTTSink struct {
	client   Client
	opts     Options
	throttle *monitoring.Throttle
}

// NewMQTTSink returns a sink publishing through client.
func NewMQTTSink(client Client, opts Options) *MQTTSink {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &MQTTSink{
		client:   client,
		opts:     opts,
		throttle: monitoring.NewThrottle(opts.PoseInterval, opts.Clock),
	}
}

// PoseTopic is the topic pose results are published on.
func (s *MQTTSink) PoseTopic() string { return s.opts.TopicPrefix + "/pose" }

// AlertTopic is the topic alerts are published on.
func (s *MQTTSink) AlertTopic() string { return s.opts.TopicPrefix + "/alert" }

// DepthResult implements pipeline.Sink. Depth results are not published.
func (s *MQTTSink) DepthResult(depth.Result) {}

// PoseResult implements pipeline.Sink.
func (s *MQTTSink) PoseResult(res posture.Result) {
	if ok, _ := s.throttle.Allow(); !ok {
		return
	}
	msg := PoseMessage{
		SessionID:       s.opts.SessionID,
		TakenUnixNanos:  s.opts.Clock.Now().UnixNano(),
		TrackingID:      res.TrackingID,
		Label:           res.Label,
		FallProbability: res.FallProbability,
		Text:            res.String(),
		Metrics:         res.Metrics,
	}
	if err := s.publish(s.PoseTopic(), 0, true, msg); err != nil {
		logf("publish error (pose): %v", err)
	}
}

// PublishAlert implements alert.Publisher.
func (s *MQTTSink) PublishAlert(a alert.Alert) error {
	return s.publish(s.AlertTopic(), 1, false, a)
}

func (s *MQTTSink) publish(topic string, qos byte, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(s.opts.PublishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}
