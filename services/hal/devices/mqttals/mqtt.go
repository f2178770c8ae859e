// Package mqttals takes lux readings from an MQTT topic, for sensors that
// live on another host.
//
// Like serialals, ReadSample holds the last message until it goes stale, so
// a publisher slower than the poll interval fills the smoothing window with
// repeats.
package mqttals

import (
	"context"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"alsd/errcode"
	"alsd/services/hal/internal/core"
	"alsd/x/strx"
	"alsd/x/timex"
)

func init() { core.RegisterSensor("mqtt", builder{}) }

type Params struct {
	Broker    string `json:"broker"` // tcp://host:1883
	Topic     string `json:"topic"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	QoS       byte   `json:"qos"`
	MaxAgeMs  int    `json:"max_age_ms"`
	TimeoutMs int    `json:"connect_timeout_ms"`
}

type builder struct{}

func (builder) BuildSensor(ctx context.Context, in core.BuildInput) (core.Sensor, error) {
	p := Params{MaxAgeMs: 5000, TimeoutMs: 5000}
	if err := core.DecodeParams(in.Params, &p); err != nil {
		return nil, err
	}
	if p.Broker == "" || p.Topic == "" || p.QoS > 2 {
		return nil, errcode.InvalidParams
	}
	lg := in.Log
	if lg == nil {
		lg = slog.Default()
	}
	s := newSensor(p.Topic, p.QoS, timex.Ms(p.MaxAgeMs), lg.With("broker", p.Broker, "topic", p.Topic))

	opts := mqtt.NewClientOptions().
		AddBroker(p.Broker).
		SetClientID(strx.Coalesce(p.ClientID, "alsd-"+in.ID)).
		SetUsername(p.Username).
		SetPassword(p.Password).
		SetConnectTimeout(timex.Ms(p.TimeoutMs)).
		SetAutoReconnect(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onLost)
	s.client = mqtt.NewClient(opts)

	tok := s.client.Connect()
	if !tok.WaitTimeout(timex.Ms(p.TimeoutMs)) {
		s.client.Disconnect(0)
		return nil, errcode.Timeout
	}
	if err := tok.Error(); err != nil {
		return nil, errcode.Wrap(errcode.Unavailable, "mqtt.connect", err)
	}
	return s, nil
}

type Sensor struct {
	topic  string
	qos    byte
	client mqtt.Client
	latest core.Latest
	log    *slog.Logger
}

func newSensor(topic string, qos byte, maxAge time.Duration, log *slog.Logger) *Sensor {
	s := &Sensor{topic: topic, qos: qos, log: log}
	s.latest.MaxAge = maxAge
	return s
}

// onConnect (re)subscribes; it runs on every successful (re)connect.
func (s *Sensor) onConnect(c mqtt.Client) {
	s.log.Info("mqtt connected")
	tok := c.Subscribe(s.topic, s.qos, func(_ mqtt.Client, m mqtt.Message) { s.handle(m.Payload()) })
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			s.log.Warn("mqtt subscribe failed", "err", err)
		}
	}()
}

func (s *Sensor) onLost(_ mqtt.Client, err error) {
	s.log.Warn("mqtt connection lost", "err", err)
	s.latest.Fail(err)
}

func (s *Sensor) handle(payload []byte) {
	v, err := core.ParseLux(payload)
	if err != nil {
		s.log.Debug("ignoring payload", "payload", string(payload), "err", err)
		return
	}
	s.latest.Set(v)
}

func (s *Sensor) ReadSample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.latest.Get()
}

func (s *Sensor) Close() error {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	return nil
}
