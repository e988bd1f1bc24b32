package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/dictation"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/notes"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/speech"
	"github.com/loqalabs/loqa-scribe/internal/storage"
	"github.com/loqalabs/loqa-scribe/internal/tts"
)

// App holds the wired components of a running scribe.
type App struct {
	KV      storage.KV
	Store   *notes.Store
	Surface *dictation.Surface
	Bus     *bus.Client
	TTS     *tts.Service

	nats   *natsserver.EmbeddedServer
	logger *slog.Logger
}

// OpenStore opens the configured storage backend and an initialized note
// store on top of it. CLI commands that only touch notes use it directly.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...notes.Option) (storage.KV, *notes.Store, error) {
	kv, err := storage.Open(ctx, cfg.Storage, logger.With(slog.String("component", "storage")))
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	base := []notes.Option{
		notes.WithAutoSave(cfg.Notes.AutoSave),
		notes.WithAutoSaveDelay(time.Duration(cfg.Notes.AutoSaveDelay) * time.Millisecond),
		notes.WithLogger(logger),
	}
	store := notes.New(notes.KVStorage(kv, cfg.Notes.Key), append(base, opts...)...)
	if err := store.Init(ctx); err != nil {
		// the synthesized first note lives in memory even if the write failed
		logger.Warn("initial note could not be persisted", slogError(err))
	}
	return kv, store, nil
}

// Open wires storage, the optional bus, the note store, speech capture and
// read-aloud according to cfg. surfaceOpts are applied after the defaults.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, surfaceOpts ...dictation.Option) (*App, error) {
	app := &App{logger: logger}

	if cfg.Bus.Enabled {
		if err := app.connectBus(ctx, cfg); err != nil {
			app.Close()
			return nil, err
		}
	}

	var opts []notes.Option
	if app.Bus != nil && cfg.Notes.PublishEvents {
		opts = append(opts, notes.WithOnChange(app.publishChange))
	}
	kv, store, err := OpenStore(ctx, cfg, logger, opts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.KV, app.Store = kv, store

	capability, err := speech.NewCapability(cfg.Speech, app.Bus, logger)
	if err != nil {
		if !errors.Is(err, speech.ErrUnsupported) {
			app.Close()
			return nil, fmt.Errorf("speech capability: %w", err)
		}
		logger.Warn("speech capture unavailable", slogError(err))
		capability = nil
	}
	surfaceBase := []dictation.Option{
		dictation.WithLogger(logger),
		dictation.WithSessionOptions(
			speech.WithLogger(logger),
			speech.WithLanguage(cfg.Speech.Language),
			speech.WithStopPhrase(cfg.Speech.StopPhrase),
		),
	}
	app.Surface = dictation.New(store, capability, append(surfaceBase, surfaceOpts...)...)

	if cfg.TTS.Enabled && app.Bus != nil {
		synth, err := tts.NewSynthesizer(cfg.TTS, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("tts: %w", err)
		}
		app.TTS = tts.NewService(context.Background(), cfg.TTS, app.Bus, synth, logger)
	}

	return app, nil
}

func (a *App) connectBus(ctx context.Context, cfg config.Config) error {
	busCfg := cfg.Bus
	server, err := natsserver.Start(busCfg, a.logger.With(slog.String("component", "nats")))
	if err != nil {
		return err
	}
	a.nats = server
	if server != nil {
		busCfg.Servers = []string{server.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, a.logger.With(slog.String("component", "bus")))
	if err != nil {
		return err
	}
	a.Bus = client
	return nil
}

func (a *App) publishChange(c notes.Change) {
	msg := protocol.NoteChanged{
		ID:        c.ID,
		Op:        string(c.Op),
		Title:     c.Title,
		WordCount: c.WordCount,
		CharCount: c.CharCount,
		Timestamp: time.Now().UTC(),
	}
	if err := a.Bus.PublishJSON(protocol.SubjectNotesChanged, msg); err != nil {
		a.logger.Warn("failed to publish note change", slogError(err))
	}
}

// Healthy reports whether every enabled dependency is usable.
func (a *App) Healthy() bool {
	if a.Store == nil {
		return false
	}
	if a.nats != nil || a.Bus != nil {
		return a.Bus.Healthy()
	}
	return true
}

// Close releases everything in reverse order of Open. A pending auto-save
// is flushed so graceful shutdown never loses the last edit.
func (a *App) Close() error {
	var errs []error
	if a.Surface != nil {
		a.Surface.Unmount()
	}
	if a.TTS != nil {
		a.TTS.Close()
	}
	if a.Store != nil {
		a.Store.Flush()
		a.Store.Close()
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	a.nats.Shutdown()
	return errors.Join(errs...)
}
