// Package hal builds the configured ambient-light sensor and display and
// reports their link state on the bus.
package hal

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"alsd/bus"
	"alsd/errcode"
	"alsd/services/hal/internal/core"
	"alsd/types"
	"alsd/x/strx"
	"alsd/x/timex"
)

// Types lists the registered sensor and display types.
func Types() (sensors, displays []string) { return core.Types() }

// Service owns one sensor and one display.
type Service struct {
	sensor  *Sensor
	display *Display
}

// Open builds both devices from cfg. conn may be nil.
func Open(ctx context.Context, cfg types.HALConfig, conn *bus.Connection, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("svc", "hal")

	sb, ok := core.LookupSensor(cfg.Sensor.Type)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownDevice, Op: "hal.sensor", Msg: cfg.Sensor.Type}
	}
	db, ok := core.LookupDisplay(cfg.Display.Type)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownDevice, Op: "hal.display", Msg: cfg.Display.Type}
	}

	sid := strx.Coalesce(cfg.Sensor.ID, cfg.Sensor.Type)
	s, err := sb.BuildSensor(ctx, core.BuildInput{ID: sid, Params: cfg.Sensor.Params, Conn: conn, Log: log.With("dev", sid)})
	if err != nil {
		return nil, err
	}
	did := strx.Coalesce(cfg.Display.ID, cfg.Display.Type)
	d, err := db.BuildDisplay(ctx, core.BuildInput{ID: did, Params: cfg.Display.Params, Conn: conn, Log: log.With("dev", did)})
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Info("devices ready", "sensor", cfg.Sensor.Type, "sensor_id", sid, "display", cfg.Display.Type, "display_id", did)

	return &Service{
		sensor:  &Sensor{dev: s, link: newLink(conn, types.KindAmbientLight, sid, cfg.Sensor.Type)},
		display: &Display{dev: d, link: newLink(conn, types.KindBacklight, did, cfg.Display.Type)},
	}, nil
}

func (s *Service) Sensor() *Sensor   { return s.sensor }
func (s *Service) Display() *Display { return s.display }

func (s *Service) Close() error {
	return errors.Join(s.sensor.dev.Close(), s.display.dev.Close())
}

// Sensor wraps the configured sensor, tracking its link state.
type Sensor struct {
	dev  core.Sensor
	link *link
}

func (s *Sensor) ReadSample(ctx context.Context) (float64, error) {
	v, err := s.dev.ReadSample(ctx)
	s.link.update(err)
	return v, err
}

// Display wraps the configured display, tracking its link state.
type Display struct {
	dev  core.Display
	link *link
}

func (d *Display) SetBrightness(fraction float64) error {
	err := d.dev.SetBrightness(fraction)
	d.link.update(err)
	return err
}

// link publishes DeviceStatus retained whenever the state changes.
type link struct {
	conn   *bus.Connection
	topic  bus.Topic
	driver string

	mu    sync.Mutex
	state types.Link
	err   string
}

func newLink(conn *bus.Connection, kind types.Kind, id, driver string) *link {
	l := &link{conn: conn, topic: types.DeviceStatusTopic(kind, id), driver: driver}
	l.update(nil)
	return l
}

func (l *link) update(err error) {
	st, msg := types.LinkUp, ""
	if err != nil {
		st, msg = types.LinkDown, string(errcode.Of(err))
	}
	l.mu.Lock()
	if st == l.state && msg == l.err {
		l.mu.Unlock()
		return
	}
	l.state, l.err = st, msg
	l.mu.Unlock()

	if l.conn != nil {
		l.conn.Publish(l.conn.NewMessage(l.topic, types.DeviceStatus{
			Driver: l.driver, Link: st, TS: timex.NowMs(), Error: msg,
		}, true))
	}
}
