package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arpan404/img/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <content-file>",
		Short: "List the styles and stories in a content file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := config.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tLANG\tVIDEO")
			for _, name := range catalog.Names() {
				r, err := catalog.Lookup(name)
				if err != nil {
					return err
				}
				kind := "story"
				if r.Generated() {
					kind = "style"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, kind, r.Lang(), r.Video)
			}
			return w.Flush()
		},
	}
}
