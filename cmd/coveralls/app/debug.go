package app

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/coveralls/internal/logger"
)

// NewDebugCommand creates the "debug" subcommand.
func NewDebugCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Build the job and print it without submitting.",
		Long: `Build the coveralls job from the configured coverage report and print it
to the log. Nothing is sent and no repo token is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			// The job is only visible at debug level.
			o.verbose = true
			_, client, err := o.setup(cmd)
			if err != nil {
				return err
			}

			logger.Info("Testing coveralls-go...")
			_, err = client.Wear(ctx, true)
			return err
		},
	}
}
