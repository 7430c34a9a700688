package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"intentd/internal/app"
	"intentd/internal/task/engine"
)

type rejection struct {
	Text   string   `json:"text"`
	Errors []string `json:"errors"`
}

type submitReport struct {
	Rejected []rejection         `json:"rejected,omitempty"`
	Results  []engine.TaskResult `json:"results"`
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit text...",
		Short: "Run requests through the pipeline with the dry-run executor",
		Long: `Submit each argument as one request, wait for the scheduler to finish them
and print the results as JSON. Tasks go to the dry-run executor, which
reports what would be done without side effects.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			a, err := openApp(cmd, app.WithoutWatch())
			if err != nil {
				return err
			}
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Stop(ctx, stopReason(cmd.Context()))
			}()

			var rep submitReport
			for _, text := range args {
				_, err := a.Submit(cmd.Context(), text)
				var rej *app.RejectedError
				switch {
				case errors.As(err, &rej):
					rep.Rejected = append(rep.Rejected, rejection{Text: text, Errors: rej.Outcome.Errors})
				case err != nil:
					return err
				}
			}
			rep.Results, err = a.Engine().ProcessTasks(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if err := newJSONWriter(cmd.OutOrStdout(), true).write(rep); err != nil {
				return err
			}

			failed := 0
			for _, r := range rep.Results {
				if !r.Success {
					failed++
				}
			}
			if len(rep.Rejected) > 0 || failed > 0 {
				return fmt.Errorf("%d rejected, %d failed", len(rep.Rejected), failed)
			}
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 30*time.Second, "How long to wait for submitted tasks to finish")
	return cmd
}
