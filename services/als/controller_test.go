package als

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alsd/bus"
	"alsd/errcode"
	"alsd/types"
	"alsd/x/ramp"
)

type fakeSensor struct {
	mu  sync.Mutex
	v   float64
	err error
}

func (s *fakeSensor) ReadSample(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v, s.err
}

func (s *fakeSensor) set(v float64, err error) {
	s.mu.Lock()
	s.v, s.err = v, err
	s.mu.Unlock()
}

// fakeDisplay records every write. hook, when set, runs after the write is
// recorded with the 1-based write count.
type fakeDisplay struct {
	mu     sync.Mutex
	writes []float64
	hook   func(n int)
}

func (d *fakeDisplay) SetBrightness(f float64) error {
	d.mu.Lock()
	d.writes = append(d.writes, f)
	n, hook := len(d.writes), d.hook
	d.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (d *fakeDisplay) Writes() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.writes...)
}

// tickLog replaces the loop's sleeps: it records every requested delay and
// yields briefly instead of waiting.
type tickLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (l *tickLog) tick(ctx context.Context) ramp.Tick {
	return func(d time.Duration) bool {
		if ctx.Err() != nil {
			return false
		}
		l.mu.Lock()
		l.delays = append(l.delays, d)
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Microsecond):
			return true
		}
	}
}

func (l *tickLog) Delays() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.delays...)
}

// scriptSensor answers the n-th read (1-based) with fn(n).
type scriptSensor struct {
	mu    sync.Mutex
	reads int
	fn    func(n int) (float64, error)
}

func (s *scriptSensor) ReadSample(context.Context) (float64, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	return s.fn(n)
}

func (s *scriptSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func newController(t *testing.T, s Settings, sensor SampleSource, display Display, initial float64) *Controller {
	t.Helper()
	c, err := New(Options{
		Sensor:            sensor,
		Display:           display,
		Curve:             StaticCurve(types.DefaultCurve()),
		Settings:          s,
		InitialBrightness: &initial,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewRequiresSensorAndDisplay(t *testing.T) {
	_, err := New(Options{Display: &fakeDisplay{}})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	_, err = New(Options{Sensor: &fakeSensor{}})
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New(Options{Sensor: &fakeSensor{}, Display: &fakeDisplay{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), c.Settings())
	assert.Equal(t, DefaultBrightness, c.Current())

	st := c.Status()
	assert.Equal(t, types.StateDisabled, st.State)
	assert.False(t, st.Enabled)
	assert.Equal(t, 100, st.PollIntervalMs)
	assert.Equal(t, 500, st.TransitionMs)
	assert.Equal(t, 50, st.Sensitivity)
}

func TestTransitionReachesTarget(t *testing.T) {
	sensor := &fakeSensor{v: 0}
	display := &fakeDisplay{}
	c := newController(t, Settings{PollInterval: time.Millisecond, TransitionDuration: 10 * time.Millisecond, Sensitivity: 3}, sensor, display, 50)

	require.NoError(t, c.Enable())
	require.Eventually(t, func() bool { return len(display.Writes()) >= 10 }, 2*time.Second, time.Millisecond)
	c.Disable()

	w := display.Writes()
	require.Len(t, w, 10, "a completed transition writes exactly ten steps")
	assert.InDelta(t, 0.46, w[0], 1e-9)
	assert.Equal(t, 0.1, w[9])
	for i := 1; i < len(w); i++ {
		assert.Less(t, w[i], w[i-1])
	}
	assert.Equal(t, 10.0, c.Current())
	assert.Equal(t, types.StateDisabled, c.Status().State)
}

func TestNoWritesWhenTargetEqualsCurrent(t *testing.T) {
	display := &fakeDisplay{}
	c := newController(t, Settings{PollInterval: time.Millisecond, TransitionDuration: 10 * time.Millisecond, Sensitivity: 2}, &fakeSensor{v: 3000}, display, 100)

	require.NoError(t, c.Enable())
	time.Sleep(50 * time.Millisecond)
	c.Disable()
	assert.Empty(t, display.Writes())
	assert.Equal(t, 100.0, c.Status().Target)
}

func TestUnavailableSensorNeverTransitions(t *testing.T) {
	display := &fakeDisplay{}
	sensor := &fakeSensor{err: errors.New("i2c: nack")}
	c := newController(t, Settings{PollInterval: time.Millisecond, TransitionDuration: 10 * time.Millisecond, Sensitivity: 1}, sensor, display, 50)

	require.NoError(t, c.Enable())
	time.Sleep(30 * time.Millisecond)
	c.Disable()
	assert.Empty(t, display.Writes())
}

func TestDisableMidTransition(t *testing.T) {
	fourth := make(chan struct{}, 1)
	display := &fakeDisplay{hook: func(n int) {
		if n == 4 {
			fourth <- struct{}{}
		}
	}}
	c := newController(t, Settings{PollInterval: time.Millisecond, TransitionDuration: time.Second, Sensitivity: 2}, &fakeSensor{v: 3000}, display, 50)

	require.NoError(t, c.Enable())
	select {
	case <-fourth:
	case <-time.After(3 * time.Second):
		t.Fatal("transition did not reach step four")
	}
	c.Disable()

	w := display.Writes()
	require.Len(t, w, 4)
	assert.InDelta(t, 0.7, w[3], 1e-9)
	assert.InDelta(t, 70.0, c.Current(), 1e-9)

	st := c.Status()
	assert.Equal(t, types.StateDisabled, st.State)
	assert.Zero(t, st.WindowFill)

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, display.Writes(), 4, "no writes after Disable returns")
}

func TestNotificationUpdatesCurrent(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("display")
	c, err := New(Options{
		Sensor:   &fakeSensor{err: errcode.Unavailable},
		Display:  &fakeDisplay{},
		Conn:     b.NewConnection("als"),
		Settings: Settings{PollInterval: 5 * time.Millisecond, Sensitivity: 1},
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Enable())

	conn.Publish(conn.NewMessage(types.TopicBrightnessChanged, types.BrightnessChanged{Fraction: 0.73}, true))
	require.Eventually(t, func() bool { return c.Current() == 73 }, time.Second, time.Millisecond)
}

func TestRetainedNotificationSeedsCurrent(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("display")
	conn.Publish(conn.NewMessage(types.TopicBrightnessChanged, types.BrightnessChanged{Fraction: 0.255}, true))

	c, err := New(Options{
		Sensor:  &fakeSensor{err: errcode.Unavailable},
		Display: &fakeDisplay{},
		Conn:    b.NewConnection("als"),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Enable())

	require.Eventually(t, func() bool { return c.Current() == 25.5 }, time.Second, time.Millisecond)
}

func TestObserveRoundsAndClamps(t *testing.T) {
	c := newController(t, Settings{}, &fakeSensor{}, &fakeDisplay{}, 50)
	c.Observe(0.123456)
	assert.Equal(t, 12.35, c.Current())
	c.Observe(1.7)
	assert.Equal(t, 100.0, c.Current())
	c.Observe(-0.2)
	assert.Equal(t, 0.0, c.Current())
}

func TestNotificationWinsOverRunningTransition(t *testing.T) {
	hold := make(chan struct{})
	release := make(chan struct{})
	tenth := make(chan struct{}, 1)
	display := &fakeDisplay{hook: func(n int) {
		switch n {
		case 3:
			close(hold)
			<-release
		case 10:
			tenth <- struct{}{}
		}
	}}
	c := newController(t, Settings{PollInterval: 5 * time.Millisecond, TransitionDuration: 20 * time.Millisecond, Sensitivity: 4}, &fakeSensor{v: 3000}, display, 50)

	require.NoError(t, c.Enable())
	<-hold
	c.Observe(0.2)
	close(release)

	select {
	case <-tenth:
	case <-time.After(3 * time.Second):
		t.Fatal("transition did not complete")
	}
	c.Disable()

	w := display.Writes()
	assert.Equal(t, 1.0, w[len(w)-1], "remaining steps still reach the planned target")
	assert.Equal(t, 20.0, c.Current())
}

func TestSetSensitivityResizesWindow(t *testing.T) {
	c := newController(t, Settings{Sensitivity: 50}, &fakeSensor{}, &fakeDisplay{}, 50)
	c.SetSensitivity(25)
	assert.Equal(t, 25, c.Settings().Sensitivity)
	assert.Equal(t, 25, c.window.Size())

	c.SetSensitivity(0)
	assert.Equal(t, 25, c.Settings().Sensitivity, "non-positive sensitivity is ignored")
}

func TestTransitionDurationChangeWaitsForNextTransition(t *testing.T) {
	const poll = 7 * time.Millisecond
	sensor := &fakeSensor{v: 3000}
	var c *Controller
	display := &fakeDisplay{hook: func(n int) {
		switch n {
		case 3:
			c.SetTransitionDuration(90 * time.Millisecond)
		case 10:
			sensor.set(0, nil)
		}
	}}
	c = newController(t, Settings{PollInterval: poll, TransitionDuration: 40 * time.Millisecond, Sensitivity: 1}, sensor, display, 50)
	tl := &tickLog{}
	c.newTick = tl.tick

	require.NoError(t, c.Enable())
	require.Eventually(t, func() bool { return len(display.Writes()) >= 20 }, 3*time.Second, time.Millisecond)
	c.Disable()

	var steps []time.Duration
	for _, d := range tl.Delays() {
		if d != poll {
			steps = append(steps, d)
		}
	}
	require.Len(t, steps, 20)
	for i, d := range steps {
		want := 4 * time.Millisecond
		if i >= 10 {
			want = 9 * time.Millisecond
		}
		assert.Equal(t, want, d, "step %d", i)
	}
	w := display.Writes()
	assert.Equal(t, 1.0, w[9])
	assert.Equal(t, 0.1, w[19])
}

func TestSensitivityChangeRestartsFilling(t *testing.T) {
	var c *Controller
	sensor := &scriptSensor{fn: func(n int) (float64, error) {
		if n == 5 {
			c.SetSensitivity(3)
			return 0, errcode.Unavailable
		}
		return 3000, nil
	}}
	firstWrite := make(chan int, 1)
	display := &fakeDisplay{hook: func(n int) {
		if n == 1 {
			firstWrite <- sensor.Reads()
		}
	}}
	c = newController(t, Settings{PollInterval: time.Millisecond, TransitionDuration: 10 * time.Millisecond, Sensitivity: 5}, sensor, display, 50)
	tl := &tickLog{}
	c.newTick = tl.tick

	require.NoError(t, c.Enable())
	select {
	case reads := <-firstWrite:
		// Four samples were pushed into the old window; after the resize the
		// window needs three fresh samples (reads 6, 7 and 8).
		assert.Equal(t, 8, reads)
	case <-time.After(3 * time.Second):
		t.Fatal("no transition after the resized window filled")
	}
	c.Disable()
}

func TestPollIntervalChangeAppliesAtNextWait(t *testing.T) {
	var c *Controller
	sensor := &scriptSensor{fn: func(n int) (float64, error) {
		if n == 3 {
			c.SetPollInterval(13 * time.Millisecond)
		}
		return 0, errcode.Unavailable
	}}
	c = newController(t, Settings{PollInterval: 7 * time.Millisecond, Sensitivity: 1}, sensor, &fakeDisplay{}, 50)
	tl := &tickLog{}
	c.newTick = tl.tick

	require.NoError(t, c.Enable())
	require.Eventually(t, func() bool { return sensor.Reads() >= 6 }, 3*time.Second, time.Millisecond)
	c.Disable()

	d := tl.Delays()
	require.GreaterOrEqual(t, len(d), 6)
	assert.Equal(t, []time.Duration{7 * time.Millisecond, 7 * time.Millisecond, 7 * time.Millisecond}, d[:3])
	for i, v := range d[3:] {
		assert.Equal(t, 13*time.Millisecond, v, "wait %d", i+3)
	}
	assert.Equal(t, 13, c.Status().PollIntervalMs)
}

func TestRetainedStatusEndsDisabled(t *testing.T) {
	b := bus.NewBus(8)
	c, err := New(Options{
		Sensor:   &fakeSensor{err: errcode.Unavailable},
		Display:  &fakeDisplay{},
		Conn:     b.NewConnection("als"),
		Settings: Settings{PollInterval: time.Millisecond, Sensitivity: 1},
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	api := b.NewConnection("api")

	for i := range 100 {
		require.NoError(t, c.Enable())
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for f := 0.0; ; f += 0.01 {
				select {
				case <-stop:
					return
				default:
				}
				c.Observe(f - float64(int(f)))
			}
		}()
		c.Disable()
		close(stop)
		<-done

		sub := api.Subscribe(types.TopicALSState)
		msg := <-sub.Channel()
		sub.Unsubscribe()
		st := msg.Payload.(types.ALSStatus)
		require.Equal(t, types.StateDisabled, st.State, "round %d", i)
		require.False(t, st.Enabled, "round %d", i)
	}
}

func TestInitialBrightnessCanBeZero(t *testing.T) {
	zero := 0.0
	c, err := New(Options{Sensor: &fakeSensor{}, Display: &fakeDisplay{}, InitialBrightness: &zero})
	require.NoError(t, err)
	assert.Zero(t, c.Current())
}

func TestApplySettings(t *testing.T) {
	c := newController(t, Settings{}, &fakeSensor{}, &fakeDisplay{}, 50)
	c.Apply(Settings{PollInterval: 250 * time.Millisecond, TransitionDuration: 800 * time.Millisecond, Sensitivity: 75})
	st := c.Status()
	assert.Equal(t, 250, st.PollIntervalMs)
	assert.Equal(t, 800, st.TransitionMs)
	assert.Equal(t, 75, st.Sensitivity)
}

func TestEnableIsIdempotentAndCloseIsFinal(t *testing.T) {
	c := newController(t, Settings{PollInterval: 5 * time.Millisecond}, &fakeSensor{err: errcode.Unavailable}, &fakeDisplay{}, 50)
	require.NoError(t, c.Enable())
	cycle := c.Status().Cycle
	require.NotEmpty(t, cycle)
	require.NoError(t, c.Enable())
	assert.Equal(t, cycle, c.Status().Cycle)

	c.Close()
	assert.False(t, c.Enabled())
	assert.Equal(t, errcode.Closed, errcode.Of(c.Enable()))
}

func TestLiveSample(t *testing.T) {
	sensor := &fakeSensor{v: 321}
	c := newController(t, Settings{}, sensor, &fakeDisplay{}, 50)

	v, err := c.LiveSample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 321.0, v)

	sensor.set(0, errors.New("gone"))
	_, err = c.LiveSample(context.Background())
	assert.Equal(t, errcode.Unavailable, errcode.Of(err))
}

func TestStatusPublishedRetained(t *testing.T) {
	b := bus.NewBus(8)
	c, err := New(Options{
		Sensor:  &fakeSensor{err: errcode.Unavailable},
		Display: &fakeDisplay{},
		Conn:    b.NewConnection("als"),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Enable())
	c.Disable()

	sub := b.NewConnection("probe").Subscribe(types.TopicALSState)
	select {
	case msg := <-sub.Channel():
		st, ok := msg.Payload.(types.ALSStatus)
		require.True(t, ok)
		assert.Equal(t, types.StateDisabled, st.State)
	case <-time.After(time.Second):
		t.Fatal("no retained status")
	}
}

func TestMetricsCountTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	display := &fakeDisplay{}
	c, err := New(Options{
		Sensor:   &fakeSensor{v: 0},
		Display:  display,
		Metrics:  m,
		Settings: Settings{PollInterval: time.Millisecond, TransitionDuration: 10 * time.Millisecond, Sensitivity: 1},
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.Enable())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.transitions.WithLabelValues("completed")) >= 1
	}, 2*time.Second, time.Millisecond)
	c.Disable()

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ticks), 1.0)
	assert.Zero(t, testutil.ToFloat64(m.writeErrors))
}
