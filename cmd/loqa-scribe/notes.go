package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-scribe/internal/notes"
	"github.com/loqalabs/loqa-scribe/internal/runtime"
	"github.com/loqalabs/loqa-scribe/internal/storage"
)

var (
	notesJSON    bool
	exportFormat string
	exportOut    string
	historyLimit int
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage the note collection",
}

// withStore opens the configured store for one command and closes it after.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, kv storage.KV, store *notes.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	kv, store, err := runtime.OpenStore(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer kv.Close()
	defer store.Close()
	return fn(ctx, kv, store)
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(_ context.Context, _ storage.KV, store *notes.Store) error {
			all := store.Notes()
			out := cmd.OutOrStdout()
			if notesJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(all)
			}
			activeID := store.ActiveID()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tTITLE\tWORDS\tUPDATED")
			for _, n := range all {
				marker := ""
				if n.ID == activeID {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", marker, n.ID, n.Title, n.WordCount, n.UpdatedAt)
			}
			return tw.Flush()
		})
	},
}

var notesNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty note and make it active",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, _ storage.KV, store *notes.Store) error {
			note, err := store.CreateNote(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", note.ID, note.Title)
			return nil
		})
	},
}

var notesShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a note's content (the active note by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(_ context.Context, _ storage.KV, store *notes.Store) error {
			note, ok := store.Active()
			if len(args) == 1 {
				note, ok = store.Get(args[0])
			}
			if !ok {
				return notes.ErrNoteNotFound
			}
			if notesJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(note)
			}
			fmt.Fprintln(cmd.OutOrStdout(), note.Content)
			return nil
		})
	},
}

var notesRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, _ storage.KV, store *notes.Store) error {
			return store.RenameNote(ctx, args[0], args[1])
		})
	},
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, _ storage.KV, store *notes.Store) error {
			return store.DeleteNote(ctx, args[0])
		})
	},
}

var notesDuplicateCmd = &cobra.Command{
	Use:   "duplicate <id>",
	Short: "Copy a note under a new id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, _ storage.KV, store *notes.Store) error {
			dup, err := store.DuplicateNote(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", dup.ID, dup.Title)
			return nil
		})
	},
}

var notesExportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Write a note to <title>.<format>",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(_ context.Context, _ storage.KV, store *notes.Store) error {
			id := store.ActiveID()
			if len(args) == 1 {
				id = args[0]
			}
			export, err := store.Export(id, exportFormat)
			if err != nil {
				return err
			}
			path := filepath.Join(exportOut, export.FileName)
			if err := os.WriteFile(path, export.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		})
	},
}

var notesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved revisions of the collection (sqlite backend)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, kv storage.KV, _ *notes.Store) error {
			db, ok := kv.(*storage.SQLite)
			if !ok {
				return errors.New("revision history requires the sqlite storage backend")
			}
			revs, err := db.Revisions(ctx, cfg.Notes.Key, historyLimit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REVISION\tSAVED\tNOTES")
			for _, r := range revs {
				var snapshot []notes.Note
				count := "?"
				if json.Unmarshal(r.Value, &snapshot) == nil {
					count = strconv.Itoa(len(snapshot))
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), count)
			}
			return tw.Flush()
		})
	},
}

var notesRestoreCmd = &cobra.Command{
	Use:   "restore <revision>",
	Short: "Make a saved revision the current collection (sqlite backend)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid revision %q", args[0])
		}
		return withStore(cmd, func(ctx context.Context, kv storage.KV, _ *notes.Store) error {
			db, ok := kv.(*storage.SQLite)
			if !ok {
				return errors.New("revision history requires the sqlite storage backend")
			}
			return db.Restore(ctx, id)
		})
	},
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesListCmd, notesNewCmd, notesShowCmd, notesRenameCmd,
		notesDeleteCmd, notesDuplicateCmd, notesExportCmd, notesHistoryCmd, notesRestoreCmd)

	notesCmd.PersistentFlags().BoolVar(&notesJSON, "json", false, "Output in JSON format")
	notesExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "txt", "Export format: "+strings.Join(notes.Formats(), ", "))
	notesExportCmd.Flags().StringVarP(&exportOut, "out", "o", ".", "Directory to write the export into")
	notesHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of revisions to show")
}
