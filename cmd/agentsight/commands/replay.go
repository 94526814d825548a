package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentsight/agentsight/internal/flow"
	"github.com/agentsight/agentsight/internal/names"
	"github.com/agentsight/agentsight/internal/replay"
	"github.com/agentsight/agentsight/internal/safefile"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/timeline"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// maxSnapshotBytes caps snapshot files read directly by CLI commands,
// matching the ingest limit.
const maxSnapshotBytes = 32 << 20

func newReplayCmd() *cobra.Command {
	var verbose, plain bool

	cmd := &cobra.Command{
		Use:   "replay <session-id|file>",
		Short: "Step through a session timeline",
		Long:  "Replays the correlated timeline of a stored session or a snapshot file. On a terminal this opens the interactive stepper; piped output falls back to the plain transcript dump.",
		Example: `  agentsight replay sess-8f2f91
  agentsight replay ./incoming/session.json
  agentsight replay sess-8f2f91 --plain --verbose | less`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, events, fl, err := loadSession(args[0])
			if err != nil {
				return err
			}

			if !plain && term.IsTerminal(int(os.Stdout.Fd())) {
				title := args[0]
				if rec != nil {
					title = rec.ID
				}
				return replay.RunInteractive(title, events, fl)
			}

			replay.NewRenderer(os.Stdout, verbose).Render(rec, events)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show full message, tool and detection payloads")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the timeline instead of the interactive stepper")
	return cmd
}

// loadSession resolves the argument as a snapshot file path first, then
// as a stored session ID. File replays get no stored record and no
// store-backed name resolution.
func loadSession(arg string) (*session.Record, []timeline.Event, *flow.Flow, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		t, err := readSnapshot(arg)
		if err != nil {
			return nil, nil, nil, err
		}
		events := timeline.Correlate(t)
		return nil, events, flow.Reconstruct(events), nil
	}

	logger := errLogger()
	store, err := openStore(logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening session store: %w", err)
	}
	defer func() { _ = store.Close() }()

	rec, err := store.Session(arg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("session %s: %w", arg, err)
	}
	t, err := store.Transcript(arg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("session %s: %w", arg, err)
	}

	resolver := names.NewStoreResolver(store, logger)
	events := timeline.Correlate(t, timeline.WithNameResolver(resolver))
	fl := flow.Reconstruct(events, flow.WithNameResolver(resolver))
	return rec, events, fl, nil
}

func readSnapshot(path string) (*timeline.Transcript, error) {
	data, err := safefile.ReadFileMax(path, maxSnapshotBytes)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var t timeline.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return &t, nil
}
