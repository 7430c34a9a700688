package cli

import (
	"bufio"
	"context"
	"strings"

	"github.com/spf13/cobra"

	"intentd/internal/app"
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [text...]",
		Short: "Print the intent, validation outcome and classification for each request",
		Long: `Parse each argument as one request (or each stdin line when no arguments
are given) and print the analysis as JSON. Nothing is executed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Stop(context.Background(), app.StopAppStop)
			out := newJSONWriter(cmd.OutOrStdout(), !lineMode(cmd))
			texts := args
			if len(texts) == 0 {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					if line := strings.TrimSpace(sc.Text()); line != "" {
						texts = append(texts, line)
					}
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			for _, text := range texts {
				if err := out.write(a.Analyze(text)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("lines", false, "Print one compact JSON object per line")
	return cmd
}

func lineMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("lines")
	return v
}
