package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"intentd/internal/app"
	"intentd/internal/eventbus"
	"intentd/internal/task/engine"
	logx "intentd/pkg/logx"
)

var errInputClosed = errors.New("input closed")

// taskLine is printed for every task that reaches a terminal state.
type taskLine struct {
	Event      string        `json:"event"`
	ID         string        `json:"id"`
	Status     engine.Status `json:"status"`
	RetryCount int           `json:"retryCount"`
	Error      string        `json:"error,omitempty"`
	Data       any           `json:"data,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve requests read line by line from stdin",
		Long: `Read one request per stdin line, queue it and print a JSON line for every
task that finishes. The config file is watched and reloaded. At end of input
queued work is drained before exiting; SIGINT or SIGTERM stop immediately.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
	cmd.Flags().Duration("drain-timeout", 30*time.Second, "How long to wait for queued tasks at end of input")
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	drain, err := cmd.Flags().GetDuration("drain-timeout")
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	log := a.Logger().With(logx.String("comp", "cli"))
	ctx := cmd.Context()

	// Subscribe before accepting input so no completion is missed.
	events, unsub := a.Bus().Subscribe(1024, eventbus.TaskCompleted, eventbus.TaskFailed, eventbus.TaskCancelled)
	defer unsub()

	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready sent")
	}

	out := newJSONWriter(cmd.OutOrStdout(), false)
	lines := readLines(cmd.InOrStdin())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return intake(gctx, a, lines, out, drain, log) })
	g.Go(func() error { return printEvents(gctx, a, events, out) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-a.Done():
			return a.Err()
		}
	})
	err = g.Wait()

	reason := stopReason(ctx)
	if errors.Is(err, errInputClosed) {
		reason, err = app.StopInputEOF, nil
	} else if err != nil {
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := a.Stop(stopCtx, reason); err == nil {
		err = serr
	}
	return err
}

// readLines feeds non-empty input lines into a channel that closes at EOF.
// The reader goroutine exits when r does.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				ch <- line
			}
		}
	}()
	return ch
}

func intake(ctx context.Context, a *app.App, lines <-chan string, out *jsonWriter, drain time.Duration, log logx.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if _, err := a.Engine().ProcessTasks(ctx, drain); err != nil && ctx.Err() == nil {
					log.Warn("drain incomplete", logx.Err(err))
				}
				return errInputClosed
			}
			_, err := a.Submit(ctx, line)
			var rej *app.RejectedError
			switch {
			case errors.As(err, &rej):
				if werr := out.write(rejection{Text: line, Errors: rej.Outcome.Errors}); werr != nil {
					return werr
				}
			case err != nil && ctx.Err() == nil:
				log.Warn("submit failed", logx.Err(err))
			}
		}
	}
}

func printEvents(ctx context.Context, a *app.App, events <-chan eventbus.Event, out *jsonWriter) error {
	emit := func(e eventbus.Event) error {
		te, ok := e.Data.(engine.TaskEvent)
		if !ok {
			return nil
		}
		line := taskLine{Event: e.Type, ID: te.ID, Status: te.Status, RetryCount: te.RetryCount, Error: te.Error}
		if t, ok := a.Engine().GetTask(te.ID); ok && t.Result != nil && t.Result.Success {
			line.Data = t.Result.Data
		}
		return out.write(line)
	}
	for {
		select {
		case <-ctx.Done():
			// Flush what was already delivered.
			for {
				select {
				case e := <-events:
					if err := emit(e); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case e := <-events:
			if err := emit(e); err != nil {
				return err
			}
		}
	}
}
