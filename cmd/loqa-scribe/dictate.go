package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-scribe/internal/dictation"
	"github.com/loqalabs/loqa-scribe/internal/notes"
	"github.com/loqalabs/loqa-scribe/internal/runtime"
	"github.com/loqalabs/loqa-scribe/internal/speech"
)

var (
	dictateNote    string
	dictateNew     bool
	dictateInterim bool
)

var dictateCmd = &cobra.Command{
	Use:   "dictate",
	Short: "Dictate into the active note until the stop phrase or Ctrl-C",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		states := make(chan speech.State, 16)
		app, err := runtime.Open(ctx, cfg, slog.Default(),
			dictation.WithSessionOptions(speech.WithOnChange(func(st speech.State) {
				select {
				case states <- st:
				default:
				}
			})),
		)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				slog.Error("shutdown error", slog.String("error", err.Error()))
			}
		}()

		switch {
		case dictateNew:
			if _, err := app.Store.CreateNote(ctx); err != nil {
				return err
			}
		case dictateNote != "":
			if err := app.Store.SetActive(dictateNote); err != nil {
				return err
			}
		}

		surface := app.Surface
		surface.Mount()
		if !surface.Speech().Supported {
			return errors.New("speech recognition is not available; check the speech section of the config")
		}
		out := cmd.OutOrStdout()
		id, initial := surface.Draft()
		note, _ := app.Store.Get(id)
		printer := &draftPrinter{out: out, interim: dictateInterim, seen: initial}
		fmt.Fprintf(out, "Dictating into %q. Say %q or press Ctrl-C to finish.\n", note.Title, cfg.Speech.StopPhrase)
		if err := surface.Start(); err != nil {
			return err
		}
	loop:
		for {
			select {
			case <-ctx.Done():
				_ = surface.Stop()
				break loop
			case st := <-states:
				_, draft := surface.Draft()
				printer.update(draft, st.InterimText)
				if surface.Speech().Phase == speech.PhaseIdle {
					break loop
				}
			}
		}
		_, draft := surface.Draft()
		printer.update(draft, "")
		printer.finish()

		if err := surface.Save(context.Background()); err != nil {
			return fmt.Errorf("save note: %w", err)
		}
		words, chars := notes.Count(draft)
		fmt.Fprintf(out, "Saved %q: %d words, %d characters.\n", note.Title, words, chars)
		return nil
	},
}

// draftPrinter echoes each chunk appended to the draft on its own line and,
// optionally, the current interim hypothesis on a line rewritten in place.
type draftPrinter struct {
	out       io.Writer
	interim   bool
	seen      string
	interimOn bool
}

func (p *draftPrinter) update(draft, interim string) {
	if strings.HasPrefix(draft, p.seen) && len(draft) > len(p.seen) {
		p.clearInterim()
		fmt.Fprintln(p.out, strings.TrimSpace(draft[len(p.seen):]))
	}
	p.seen = draft
	if p.interim && interim != "" {
		p.clearInterim()
		fmt.Fprintf(p.out, "\x1b[2m%s\x1b[0m", interim)
		p.interimOn = true
	}
}

func (p *draftPrinter) clearInterim() {
	if p.interimOn {
		fmt.Fprint(p.out, "\r\x1b[K")
		p.interimOn = false
	}
}

func (p *draftPrinter) finish() {
	p.clearInterim()
}

func init() {
	rootCmd.AddCommand(dictateCmd)
	dictateCmd.Flags().StringVar(&dictateNote, "note", "", "Dictate into the note with this id")
	dictateCmd.Flags().BoolVar(&dictateNew, "new", false, "Start a new note first")
	dictateCmd.Flags().BoolVar(&dictateInterim, "interim", true, "Show interim results while speaking")
	dictateCmd.MarkFlagsMutuallyExclusive("note", "new")
}
