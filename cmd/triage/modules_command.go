package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/modules"
	"triage/internal/textutil"
)

func newModulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the analysis modules available to pipeline configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := modules.NewRegistry()
			if err != nil {
				return err
			}
			regs := registry.Modules()
			rows := make([][]string, 0, len(regs))
			for _, reg := range regs {
				kinds := "any"
				if len(reg.Kinds) > 0 {
					names := make([]string, 0, len(reg.Kinds))
					for _, k := range reg.Kinds {
						names = append(names, string(k))
					}
					kinds = strings.Join(names, ", ")
				}
				rows = append(rows, []string{reg.Name, kinds, reg.Description})
			}
			fmt.Fprint(cmd.OutOrStdout(), textutil.RenderTable(
				[]string{"Module", "Pipelines", "Description"},
				rows,
				[]textutil.Align{textutil.AlignLeft, textutil.AlignLeft, textutil.AlignLeft},
			))
			return nil
		},
	}
}
