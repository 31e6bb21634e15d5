package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/flowkernel"
	"github.com/GoCodeAlone/flowkernel/prototypes"
)

// NewPrototypesCommand creates the prototypes command.
func NewPrototypesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "prototypes",
		Short: "List the module prototypes available to project files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			protos := prototypes.NewFactory().Prototypes()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(protos)
			}
			return writePrototypeTable(cmd.OutOrStdout(), protos)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func writePrototypeTable(w io.Writer, protos []flowkernel.Prototype) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINPUTS\tOUTPUTS\tPROPERTIES\tDESCRIPTION")
	for _, p := range protos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.Name,
			connectorList(p.Inputs),
			connectorList(p.Outputs),
			propertyList(p.Properties),
			p.Description,
		)
	}
	return tw.Flush()
}

func connectorList(list []flowkernel.ConnectorInfo) string {
	if len(list) == 0 {
		return "-"
	}
	parts := make([]string, len(list))
	for i, ci := range list {
		parts[i] = fmt.Sprintf("%s(%s)", ci.Name, ci.Type)
	}
	return strings.Join(parts, ",")
}

func propertyList(list []flowkernel.PropertyInfo) string {
	if len(list) == 0 {
		return "-"
	}
	parts := make([]string, len(list))
	for i, pi := range list {
		parts[i] = fmt.Sprintf("%s=%s", pi.Name, pi.Default)
	}
	return strings.Join(parts, ",")
}
