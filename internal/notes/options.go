package notes

import (
	"log/slog"
	"time"
)

// DefaultAutoSaveDelay is the quiet period before a scheduled save fires.
const DefaultAutoSaveDelay = 800 * time.Millisecond

type options struct {
	autoSave bool
	delay    time.Duration
	logger   *slog.Logger
	clock    func() time.Time
	after    afterFunc
	newID    func() string
	onChange func(Change)
}

// Option configures a Store.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		autoSave: true,
		delay:    DefaultAutoSaveDelay,
		clock:    time.Now,
		newID:    newID,
	}
}

// WithAutoSave sets the initial auto-save toggle.
func WithAutoSave(enabled bool) Option {
	return func(o *options) {
		o.autoSave = enabled
	}
}

// WithAutoSaveDelay overrides the debounce quiet period.
func WithAutoSaveDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock injects the time source used for note dates.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithIDGenerator replaces the uuid-based id generator.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		o.newID = gen
	}
}

// WithOnChange registers a callback invoked after every persisted mutation.
// It runs outside the store lock.
func WithOnChange(fn func(Change)) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

func withAfterFunc(after afterFunc) Option {
	return func(o *options) {
		o.after = after
	}
}
