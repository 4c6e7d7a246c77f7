package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newForwardCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Forward one storage event (S3, GCS or Pub/Sub push JSON) to the webhook",
		Long: `Reads a storage event from --file (or stdin when the flag is empty or "-"), POSTs its
bucket and key to the configured webhook once, and prints the {"statusCode","body"} result.
The command exits non-zero when the webhook was not notified.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			raw, err := readEvent(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			res := appInstance.Forwarder().HandleEvent(cmd.Context(), raw)
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK() {
				return errors.New(res.Body)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `event file, or "-" for stdin`)
	return cmd
}

func readEvent(stdin io.Reader, file string) ([]byte, error) {
	if file == "" || file == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read event from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}
	return raw, nil
}
