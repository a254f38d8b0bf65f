package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/shiftscan/internal/extract"
	"github.com/sells-group/shiftscan/internal/model"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show which extraction providers are configured",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := extract.NewRegistryFromConfig(cfg, nil)
		if err != nil {
			return err
		}
		formatProviders(os.Stdout, configuredProviders(), reg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// formatProviders lists every known provider and whether it is usable.
func formatProviders(out io.Writer, requested []model.ProviderID, reg *extract.Registry) {
	enabled := make(map[model.ProviderID]bool, len(requested))
	for _, id := range requested {
		enabled[id] = true
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tCONFIGURED\tAVAILABLE")
	for _, id := range model.KnownProviders {
		_, available := reg.Get(id)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", id, yesNo(enabled[id]), yesNo(available))
	}
	_ = w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
