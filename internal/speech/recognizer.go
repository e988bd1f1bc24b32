package speech

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
)

// ErrUnsupported is returned by a Capability that cannot capture speech on
// this host.
var ErrUnsupported = errors.New("speech recognition unsupported")

// Handler receives recognizer callbacks. Calls may arrive on any goroutine.
type Handler interface {
	HandleResults(batch []Result)
	HandleEnd()
	HandleError(code ErrorCode)
}

// Recognizer is a continuous recognizer owned by exactly one session.
//
// Start and Stop must not call the Handler synchronously. A Recognizer
// reports the end of every capture run through HandleEnd, including runs
// halted by Stop.
type Recognizer interface {
	Start() error
	Stop() error
	Close() error
}

// Options configures a recognizer run.
type Options struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// Capability constructs recognizers bound to a handler.
type Capability interface {
	NewRecognizer(opts Options, h Handler) (Recognizer, error)
}

// NewCapability selects the backend named by cfg.Mode. The bus client is
// only required in bus mode.
func NewCapability(cfg config.SpeechConfig, client *bus.Client, log *slog.Logger) (Capability, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "", "mock":
		return &MockCapability{
			Phrases: cfg.Phrases,
			Gap:     time.Duration(cfg.PhraseGap) * time.Millisecond,
		}, nil
	case "exec":
		return NewExecCapability(cfg.Command, log)
	case "bus":
		if client == nil {
			return nil, fmt.Errorf("speech mode bus requires a bus connection")
		}
		return &BusCapability{Client: client, SessionID: cfg.SessionID}, nil
	default:
		return nil, fmt.Errorf("unknown speech mode %q", cfg.Mode)
	}
}
