package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Extract shifts from a schedule image",
	Long:  "Runs one consolidation session against the configured providers and prints the consolidated shifts.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open image")
		}
		defer f.Close() //nolint:errcheck

		img, err := pipeline.ReadImage(f, filepath.Base(args[0]), cfg.Extract.MaxImageBytes)
		if err != nil {
			return err
		}

		user, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		providers, _ := cmd.Flags().GetStringSlice("providers")
		compare, _ := cmd.Flags().GetBool("compare")
		year, _ := cmd.Flags().GetInt("year")
		asJSON, _ := cmd.Flags().GetBool("json")

		req := pipeline.SubmitRequest{
			UserID:                 user,
			UserName:               name,
			Image:                  img,
			Providers:              configuredProviders(),
			CompareAcrossProviders: compare,
			ReferenceYear:          year,
		}
		if len(providers) > 0 {
			req.Providers = toProviderIDs(providers)
		}
		if cmd.Flags().Changed("threshold") {
			t, _ := cmd.Flags().GetFloat64("threshold")
			req.ConfidenceThreshold = &t
		}

		res, err := env.Pipeline.Submit(ctx, req)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatSubmitResult(os.Stdout, res, req.Providers)
		return nil
	},
}

func init() {
	extractCmd.Flags().String("user", defaultUser(), "user id owning the session")
	extractCmd.Flags().String("name", "", "name of the person whose shifts the image shows")
	extractCmd.Flags().StringSlice("providers", nil, "providers to run (default from config)")
	extractCmd.Flags().Float64("threshold", pipeline.DefaultConfidenceThreshold, "confidence below which results need review")
	extractCmd.Flags().Bool("compare", false, "compare results across providers")
	extractCmd.Flags().Int("year", 0, "year for dates printed without one (default current year)")
	extractCmd.Flags().Bool("json", false, "print the full result as JSON")
	rootCmd.AddCommand(extractCmd)
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func toProviderIDs(names []string) []model.ProviderID {
	out := make([]model.ProviderID, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			out = append(out, model.ProviderID(n))
		}
	}
	return out
}

// formatSubmitResult writes per-provider outcomes, the consolidated shifts
// and any conflicts to out.
func formatSubmitResult(out io.Writer, res *model.SubmitResult, order []model.ProviderID) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", res.SessionID)
	_, _ = fmt.Fprintf(w, "Duration:\t%dms\n\n", res.ProcessingTimeMs)

	_, _ = fmt.Fprintln(w, "PROVIDER\tSTATUS\tCONFIDENCE\tSHIFTS\tTIME\tERROR")
	seen := make(map[model.ProviderID]bool, len(order))
	for _, id := range order {
		o, ok := res.Outcomes[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		status := "ok"
		if !o.Success {
			status = "failed"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%dms\t%s\n",
			o.Provider, status, o.Confidence, len(o.Shifts), o.ProcessingTimeMs, o.ErrorMessage)
	}
	_ = w.Flush()

	c := res.Consolidated
	_, _ = fmt.Fprintln(out)
	if len(c.RecommendedShifts) == 0 {
		_, _ = fmt.Fprintln(out, "No shifts extracted. Needs review.")
		return
	}

	review := "no"
	if c.NeedsReview {
		review = "yes"
	}
	_, _ = fmt.Fprintf(out, "Recommended: %s (confidence %.2f, needs review: %s)\n\n", c.RecommendedProvider, c.OverallConfidence, review)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tSTART\tEND\tWORKPLACE\tRATE\tBREAK")
	for _, s := range c.RecommendedShifts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%dm\n",
			s.Date, s.StartTime, s.EndTime, s.WorkplaceName, s.HourlyRate, s.BreakMinutes)
	}
	_ = w.Flush()

	if len(c.Conflicts) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\nConflicts (%d):\n", len(c.Conflicts))
	for _, cf := range c.Conflicts {
		parts := make([]string, 0, len(cf.Observations))
		for _, ob := range cf.Observations {
			parts = append(parts, fmt.Sprintf("%s=%v", ob.Provider, ob.Value))
		}
		_, _ = fmt.Fprintf(out, "  %s: %s\n", cf.Field, strings.Join(parts, ", "))
	}
}
