package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/neo-explorer/model"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		pdes    string
		name    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a single NEO, looked up by primary designation or by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var neo *model.NearEarthObject
			if pdes != "" {
				neo = a.catalog.GetByDesignation(pdes)
			} else {
				neo = a.catalog.GetByName(name)
			}

			out := cmd.OutOrStdout()
			if neo == nil {
				fmt.Fprintln(out, "No matching NEOs exist in the database.")
				return nil
			}

			fmt.Fprintln(out, neo)
			if verbose {
				fmt.Fprintf(out, "%s close approaches:\n", humanize.Comma(int64(len(neo.Approaches))))
				for _, ca := range neo.Approaches {
					fmt.Fprintf(out, "- %s (JD %.5f)\n", ca, ca.JulianDate())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pdes, "pdes", "p", "", "primary designation of the NEO")
	cmd.Flags().StringVarP(&name, "name", "n", "", "IAU name of the NEO")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also list the NEO's close approaches")
	cmd.MarkFlagsOneRequired("pdes", "name")
	cmd.MarkFlagsMutuallyExclusive("pdes", "name")
	return cmd
}
