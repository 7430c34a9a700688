package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"intentd/internal/app"
	"intentd/internal/config"
)

// NewRootCmd builds the intentd command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intentd",
		Short: "Turn free-text automation requests into scheduled tasks",
		Long: `intentd parses free-text automation requests into structured intents,
validates and risk-scores them, and runs them through a priority scheduler
with bounded concurrency and automatic retry.

Running 'intentd' without a subcommand is equivalent to 'intentd run'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to intentd.yaml or intentd.json (default: built-in defaults)")
	root.PersistentFlags().String("log-level", "", "Override logging.level (trace, debug, info, warn, error)")

	run := newRunCmd()
	root.AddCommand(newParseCmd(), newSubmitCmd(), run, newRecentCmd())
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())
	return root
}

// Execute runs the CLI until it finishes or the process is signalled.
func Execute() int {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case s := <-sigs:
			cancel(signalError{sig: s})
		case <-ctx.Done():
		}
	}()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "intentd:", err)
		return 1
	}
	return 0
}

type signalError struct{ sig os.Signal }

func (e signalError) Error() string { return "received " + e.sig.String() }

// stopReason maps why ctx ended onto an app.StopReason.
func stopReason(ctx context.Context) app.StopReason {
	var se signalError
	if errors.As(context.Cause(ctx), &se) {
		switch se.sig {
		case os.Interrupt:
			return app.StopSIGINT
		case syscall.SIGTERM:
			return app.StopSIGTERM
		}
	}
	if ctx.Err() != nil {
		return app.StopUnknown
	}
	return app.StopAppStop
}

// openApp loads the config named by --config, applies --log-level and
// builds the app. Console logs go to the command's stderr.
func openApp(cmd *cobra.Command, opts ...app.Option) (*app.App, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	cfgm := config.NewManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level != "" {
		cfg.Logging.Level = level
		if _, err := cfg.Resolve(); err != nil {
			return nil, err
		}
		cfgm.Commit(cfg)
	}
	opts = append([]app.Option{app.WithConsole(cmd.ErrOrStderr())}, opts...)
	return app.New(cmd.Context(), cfgm, opts...)
}

// jsonWriter serializes concurrent JSON output.
type jsonWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONWriter(w io.Writer, indent bool) *jsonWriter {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return &jsonWriter{enc: enc}
}

func (w *jsonWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}
