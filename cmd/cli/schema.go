package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/newhosts/internal/db"
)

func newSchemaCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the detection store schema",
		Long: `Create the tables of the detection store. With --reset existing tables are
dropped first and all recorded detections and saved networks are lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withDatabase(ctx, cfg, func(database *db.DB) error {
				if err := prepareSchema(ctx, database, reset); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (%s)\n", database.Driver())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "drop and recreate existing tables")
	return cmd
}
