package als

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"alsd/bus"
	"alsd/errcode"
	"alsd/types"
	"alsd/x/mathx"
	"alsd/x/ramp"
	"alsd/x/timex"
)

// SampleSource reads the ambient-light sensor. Any error means the sample
// is unavailable for this tick.
type SampleSource interface {
	ReadSample(ctx context.Context) (float64, error)
}

// CurveSource returns the current brightness curve. It is consulted once per
// tick; an error or an empty curve selects types.DefaultCurve.
type CurveSource interface {
	Curve(ctx context.Context) (types.Curve, error)
}

// Display writes the physical brightness, fraction in [0,1]. Writes are
// fire-and-forget: errors are logged and never retried within a step.
type Display interface {
	SetBrightness(fraction float64) error
}

// StaticCurve is a CurveSource that always returns the same curve.
type StaticCurve types.Curve

func (s StaticCurve) Curve(context.Context) (types.Curve, error) {
	return types.Curve(s).Clone(), nil
}

// Settings are the live-tunable loop parameters.
type Settings struct {
	PollInterval       time.Duration
	TransitionDuration time.Duration
	Sensitivity        int // smoothing window capacity
}

const (
	DefaultPollInterval       = 100 * time.Millisecond
	DefaultTransitionDuration = 500 * time.Millisecond
	DefaultSensitivity        = 50
	DefaultBrightness         = 50.0
)

func DefaultSettings() Settings {
	return Settings{
		PollInterval:       DefaultPollInterval,
		TransitionDuration: DefaultTransitionDuration,
		Sensitivity:        DefaultSensitivity,
	}
}

// Options configure a Controller. Sensor and Display are required.
type Options struct {
	Sensor  SampleSource
	Curve   CurveSource // nil: default curve
	Display Display

	// Conn, when set, carries brightness-change notifications in and
	// retained status out.
	Conn *bus.Connection

	Logger   *slog.Logger
	Metrics  *Metrics
	Settings Settings

	// InitialBrightness seeds the current-brightness estimate until the
	// first notification arrives. Nil means DefaultBrightness.
	InitialBrightness *float64
}

// Controller runs the adaptive brightness loop: sample, smooth, map, and
// step the display towards the target. All methods are safe for concurrent
// use, but Disable and Close must not be called from Display or SampleSource
// callbacks since they wait for the loop to exit.
type Controller struct {
	sensor  SampleSource
	curve   CurveSource
	display Display
	conn    *bus.Connection
	log     *slog.Logger
	metrics *Metrics

	life sync.Mutex // serialises Enable, Disable and Close
	pub  sync.Mutex // orders status snapshots with their publication

	newTick func(context.Context) ramp.Tick

	mu       sync.Mutex
	enabled  bool
	closed   bool
	state    types.ControlState
	settings Settings
	window   *Window
	current  float64
	target   float64
	average  float64
	notified uint64 // bumped by every merged notification
	cycle    string
	cancel   context.CancelFunc
	done     chan struct{}
	sub      *bus.Subscription
}

// New validates opts and returns a disabled controller.
func New(opts Options) (*Controller, error) {
	if opts.Sensor == nil || opts.Display == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "als.New", Msg: "sensor and display are required"}
	}
	s := opts.Settings
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.TransitionDuration < 0 {
		s.TransitionDuration = 0
	}
	if s.Sensitivity <= 0 {
		s.Sensitivity = DefaultSensitivity
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	initial := DefaultBrightness
	if opts.InitialBrightness != nil {
		initial = *opts.InitialBrightness
	}
	return &Controller{
		sensor:   opts.Sensor,
		curve:    opts.Curve,
		display:  opts.Display,
		conn:     opts.Conn,
		log:      lg.With("svc", "als"),
		metrics:  opts.Metrics,
		state:    types.StateDisabled,
		settings: s,
		window:   NewWindow(s.Sensitivity),
		current:  mathx.ClampPercent(initial),
		newTick:  ramp.ContextTick,
	}, nil
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Enable starts the loop from a cleared smoothing window. It also starts
// listening for brightness-change notifications the first time it is called.
// Enabling an enabled controller is a no-op.
func (c *Controller) Enable() error {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errcode.Closed
	}
	if c.enabled {
		c.mu.Unlock()
		return nil
	}
	c.listenLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.enabled = true
	c.window.Reset()
	c.cycle = uuid.NewString()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = types.StateWaiting
	done, cycle := c.done, c.cycle
	c.mu.Unlock()

	c.publishStatus()
	go c.run(ctx, done, cycle)
	return nil
}

// Disable stops the loop, waiting for an in-flight step to finish so that no
// display write happens after it returns. The current brightness keeps the
// last written value and the smoothing window is cleared.
func (c *Controller) Disable() {
	c.life.Lock()
	defer c.life.Unlock()
	c.disable()
}

func (c *Controller) disable() {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = false
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.window.Reset()
	c.state = types.StateDisabled
	c.mu.Unlock()
	c.publishStatus()
}

// Close disables the controller and drops the notification subscription.
func (c *Controller) Close() {
	c.life.Lock()
	defer c.life.Unlock()
	c.disable()

	c.mu.Lock()
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Enabled reports whether the loop is running.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// -----------------------------------------------------------------------------
// Live reconfiguration
// -----------------------------------------------------------------------------

// SetPollInterval takes effect from the next inter-tick wait.
func (c *Controller) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.settings.PollInterval = d
	c.mu.Unlock()
	c.publishStatus()
}

// SetTransitionDuration takes effect from the next transition; a running
// transition keeps its duration.
func (c *Controller) SetTransitionDuration(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	c.settings.TransitionDuration = d
	c.mu.Unlock()
	c.publishStatus()
}

// SetSensitivity resizes the smoothing window immediately, discarding its
// history. Setting the same capacity keeps the history.
func (c *Controller) SetSensitivity(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.settings.Sensitivity = n
	if c.window.Size() != n {
		c.window.Resize(n)
	}
	c.mu.Unlock()
	c.publishStatus()
}

// Apply sets all three parameters.
func (c *Controller) Apply(s Settings) {
	c.SetPollInterval(s.PollInterval)
	c.SetTransitionDuration(s.TransitionDuration)
	c.SetSensitivity(s.Sensitivity)
}

// Settings returns the current parameters.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// -----------------------------------------------------------------------------
// Accessors for the control surface
// -----------------------------------------------------------------------------

// LiveSample reads the sensor once, outside the loop.
func (c *Controller) LiveSample(ctx context.Context) (float64, error) {
	v, err := c.sensor.ReadSample(ctx)
	if err != nil {
		return 0, errcode.Wrap(errcode.Unavailable, "read_sample", err)
	}
	if !mathx.Finite(v) {
		return 0, errcode.Unavailable
	}
	return v, nil
}

// Curve returns the curve the next tick would use.
func (c *Controller) Curve(ctx context.Context) types.Curve {
	return c.loadCurve(ctx)
}

// Current is the best estimate of the display brightness in percent.
func (c *Controller) Current() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Status returns a snapshot of the control state.
func (c *Controller) Status() types.ALSStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() types.ALSStatus {
	return types.ALSStatus{
		State:          c.state,
		Enabled:        c.enabled,
		Current:        c.current,
		Target:         c.target,
		Average:        c.average,
		PollIntervalMs: timex.ToMs(c.settings.PollInterval),
		TransitionMs:   timex.ToMs(c.settings.TransitionDuration),
		Sensitivity:    c.settings.Sensitivity,
		WindowFill:     c.window.Fill(),
		Cycle:          c.cycle,
		TS:             timex.NowMs(),
	}
}

func (c *Controller) publishStatus() {
	if c.conn == nil {
		return
	}
	c.pub.Lock()
	defer c.pub.Unlock()
	st := c.Status()
	c.metrics.levels(st.Current, st.Target)
	c.conn.Publish(c.conn.NewMessage(types.TopicALSState, st, true))
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// Observe merges an externally observed display brightness (fraction in
// [0,1]) into the current-brightness estimate. The observed value wins over
// the remaining steps of a running transition, which still writes the
// display up to its planned target.
func (c *Controller) Observe(fraction float64) {
	if !mathx.Finite(fraction) {
		return
	}
	p := mathx.ClampPercent(math.Round(fraction*10000) / 100)
	c.mu.Lock()
	c.current = p
	c.notified++
	c.mu.Unlock()
	c.metrics.notified()
	c.publishStatus()
}

func (c *Controller) listenLocked() {
	if c.sub != nil || c.conn == nil {
		return
	}
	c.sub = c.conn.Subscribe(types.TopicBrightnessChanged)
	go c.watch(c.sub)
}

func (c *Controller) watch(sub *bus.Subscription) {
	for msg := range sub.Channel() {
		switch ev := msg.Payload.(type) {
		case types.BrightnessChanged:
			c.Observe(ev.Fraction)
		case *types.BrightnessChanged:
			c.Observe(ev.Fraction)
		default:
			c.log.Warn("ignoring brightness notification", "topic", msg.Topic.String(), "payload", msg.Payload)
		}
	}
}

// -----------------------------------------------------------------------------
// Loop
// -----------------------------------------------------------------------------

func (c *Controller) run(ctx context.Context, done chan struct{}, cycle string) {
	defer close(done)
	lg := c.log.With("cycle", cycle)
	lg.Info("adaptive brightness enabled")

	wait := c.newTick(ctx)
	for {
		c.mu.Lock()
		interval := c.settings.PollInterval
		c.mu.Unlock()

		if !wait(interval) {
			lg.Info("adaptive brightness disabled")
			return
		}
		c.tick(ctx, wait, lg)
	}
}

func (c *Controller) tick(ctx context.Context, wait ramp.Tick, lg *slog.Logger) {
	c.metrics.tick()

	c.mu.Lock()
	duration := c.settings.TransitionDuration
	c.state = types.StateSampling
	c.mu.Unlock()

	curve := c.loadCurve(ctx)
	sample, err := c.sensor.ReadSample(ctx)
	if err != nil || !mathx.Finite(sample) {
		lg.Debug("sample unavailable", "err", err)
		c.skip(skipUnavailable)
		return
	}

	c.mu.Lock()
	c.window.Push(sample)
	avg, ok := c.window.Average()
	if !ok {
		c.state = types.StateWaiting
		c.mu.Unlock()
		c.metrics.skip(skipFilling)
		return
	}
	from := c.current
	to := Target(curve, from, avg)
	c.average, c.target = avg, to
	if to == from {
		c.state = types.StateWaiting
		c.mu.Unlock()
		c.metrics.skip(skipSteady)
		return
	}
	c.state = types.StateTransitioning
	gen := c.notified
	c.mu.Unlock()
	c.publishStatus()

	lg.Debug("transition", "sample", sample, "avg", avg, "current", from, "target", to, "duration", duration)
	c.transition(wait, lg, from, to, duration, gen)
}

// transition steps the display from 'from' to 'to'. Each written level
// becomes the current estimate unless a notification arrived since the
// transition started (gen).
func (c *Controller) transition(wait ramp.Tick, lg *slog.Logger, from, to float64, d time.Duration, gen uint64) {
	_, completed := ramp.Linear(from, to, d, ramp.StepCount, wait, func(level float64) {
		if err := c.display.SetBrightness(level / 100); err != nil {
			lg.Warn("display write failed", "level", level, "err", err)
			c.metrics.writeError()
		}
		c.mu.Lock()
		if c.notified == gen {
			c.current = level
		}
		c.mu.Unlock()
	})
	c.metrics.transition(completed)

	c.mu.Lock()
	if completed {
		if c.notified == gen {
			c.current = to
		}
		c.window.Reset()
	}
	if c.enabled {
		c.state = types.StateWaiting
	}
	c.mu.Unlock()
	c.publishStatus()
}

func (c *Controller) skip(reason string) {
	c.mu.Lock()
	c.state = types.StateWaiting
	c.mu.Unlock()
	c.metrics.skip(reason)
}

func (c *Controller) loadCurve(ctx context.Context) types.Curve {
	if c.curve == nil {
		return types.DefaultCurve()
	}
	curve, err := c.curve.Curve(ctx)
	if err != nil || len(curve) == 0 {
		if err != nil {
			c.log.Debug("curve unavailable, using default", "err", err)
		}
		return types.DefaultCurve()
	}
	return curve
}
