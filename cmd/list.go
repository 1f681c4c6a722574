package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/lancet/internal/scenario"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [file|dir...]",
		Short: "List built-in scenarios, or the ones in the given files",
		RunE: func(cmd *cobra.Command, args []string) error {
			scs, err := scenario.Select(args)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTEPS\tSOURCE\tDESCRIPTION")
			for _, sc := range scs {
				id := sc.ID
				if id == "" {
					id = "-"
				}
				desc := sc.Description
				if sc.Assertion.SuspectPolarity {
					desc = "[suspect assertion] " + desc
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", id, sc.Name, len(sc.Steps), sc.Source, desc)
			}
			return w.Flush()
		},
	}
}
