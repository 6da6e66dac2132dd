package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/network"
)

func newNetworksCmd() *cobra.Command {
	// networksCmd represents the networks command.
	networksCmd := &cobra.Command{
		Use:   "networks",
		Short: "Manage saved network configurations",
		Long: `View and manage saved networks. A saved network gives a name to an address
range so it can be scanned with "newhosts scan -C <name>".`,
		Example: `  newhosts networks list
  newhosts networks add home 192.168.1.0/24
  newhosts networks add lab 10.0.0.1-10.0.0.50
  newhosts networks remove lab`,
	}

	// networksListCmd represents the networks list command.
	networksListCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved networks",
		Long: `List all saved network configurations. The command always exits with
status 1 after printing the list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithStore(cmd, func(ctx context.Context, database *db.DB) error {
				return listNetworks(ctx, cmd.OutOrStdout(), database)
			})
		},
	}

	// networksAddCmd represents the networks add command.
	networksAddCmd := &cobra.Command{
		Use:   "add [name] [range]",
		Short: "Save a network under a name",
		Long: `Save an address range under a name. The range is a hyphenated range, a CIDR
block or a single address. An existing network with the same name is replaced.`,
		Example: `  newhosts networks add home 192.168.1.0/24`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := network.Parse(args[1])
			if err != nil {
				return err
			}
			rng.Name = args[0]
			return runWithStore(cmd, func(ctx context.Context, database *db.DB) error {
				if err := database.SaveNetwork(ctx, rng.Network()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved network %s (%s, %d addresses)\n", rng.Name, rng, rng.Len())
				return nil
			})
		},
	}

	// networksRemoveCmd represents the networks remove command.
	networksRemoveCmd := &cobra.Command{
		Use:               "remove [name]",
		Short:             "Remove a saved network",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNetworkNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(cmd, func(ctx context.Context, database *db.DB) error {
				if err := database.DeleteNetwork(ctx, args[0]); err != nil {
					if db.IsNotFound(err) {
						return fmt.Errorf("network %q not found", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed network %s\n", args[0])
				return nil
			})
		},
	}

	networksCmd.AddCommand(networksListCmd, networksAddCmd, networksRemoveCmd)
	return networksCmd
}

// runWithStore loads the configuration and runs op on a store with a
// usable schema.
func runWithStore(cmd *cobra.Command, op func(ctx context.Context, database *db.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return withDatabase(ctx, cfg, func(database *db.DB) error {
		if err := prepareSchema(ctx, database, false); err != nil {
			return err
		}
		return op(ctx, database)
	})
}

func completeNetworkNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	// Errors are ignored during completion
	_ = runWithStore(cmd, func(ctx context.Context, database *db.DB) error {
		networks, err := database.ListNetworks(ctx)
		if err != nil {
			return nil
		}
		for _, n := range networks {
			names = append(names, n.Name)
		}
		return nil
	})
	return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func filterPrefix(values []string, prefix string) []string {
	var out []string
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	return out
}
