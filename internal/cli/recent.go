package cli

import (
	"context"

	"github.com/spf13/cobra"

	"intentd/internal/app"
)

func newRecentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print archived tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			a, err := openApp(cmd, app.WithoutWatch())
			if err != nil {
				return err
			}
			defer a.Stop(context.Background(), app.StopAppStop)

			recs, err := a.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := newJSONWriter(cmd.OutOrStdout(), false)
			for _, r := range recs {
				if err := out.write(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of records")
	return cmd
}
