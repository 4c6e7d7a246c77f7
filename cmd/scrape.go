package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	var store bool

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the rate page once and print the records as JSON",
		Long: `Fetches the configured rate page, classifies every row of its first table and prints the
records to stdout as an indented JSON array. A failed fetch prints an empty array.

With --store the records are also written to Postgres (when db.dsn is set), archived to
the configured object store and announced on the Pub/Sub topic.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !store {
				return writeJSON(cmd.OutOrStdout(), appInstance.Scraper().Run(cmd.Context()))
			}

			summary, runErr := appInstance.Scraper().RunAndStore(cmd.Context())
			if err := writeJSON(cmd.OutOrStdout(), summary.Records); err != nil {
				return err
			}
			if runErr != nil {
				return fmt.Errorf("store scrape results: %w", runErr)
			}
			appInstance.Logger().Info("scrape command finished",
				zap.Int("stored", summary.Stored),
				zap.String("snapshot_uri", summary.SnapshotURI),
				zap.String("message_id", summary.MessageID),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "persist, archive and announce the records")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
