package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCategoriesCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the categories that can be imported",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(global)
			if err != nil {
				return err
			}
			defer e.close()

			reg, err := e.registry()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tNAME\tDIRECTORY\tFIELDS")
			for _, m := range reg.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", m.Code(), m.Name, m.Directory, len(m.Fields))
			}
			return tw.Flush()
		},
	}
}
