package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cluvo-ai/cluvo/internal/canvas"
	"github.com/cluvo-ai/cluvo/internal/model"
)

var canvasCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Inspect and update business model canvases",
}

var canvasShowCmd = &cobra.Command{
	Use:   "show <idea-id>",
	Short: "Print the current canvas of an idea",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		c, err := st.LoadCanvas(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "canvas show")
		}
		return printJSON(os.Stdout, c)
	},
}

var canvasHistoryCmd = &cobra.Command{
	Use:   "history <idea-id>",
	Short: "List applied canvas changes, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		changes, err := st.ListCanvasChanges(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "canvas history")
		}
		if len(changes) == 0 {
			fmt.Fprintln(os.Stderr, "No canvas changes found.")
			return nil
		}
		formatChanges(os.Stdout, changes)
		return nil
	},
}

var canvasApplyCmd = &cobra.Command{
	Use:   "apply <idea-id>",
	Short: "Run the canvas gate over stored insights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids, _ := cmd.Flags().GetStringSlice("insights")
		if len(ids) == 0 {
			return eris.New("--insights is required")
		}
		preview, _ := cmd.Flags().GetBool("preview")

		env, err := initApp(ctx, "interview")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Canvas.ApplyIDs(ctx, args[0], ids, preview)
		if err != nil {
			return err
		}
		formatGateResult(os.Stdout, res)
		return nil
	},
}

func init() {
	canvasHistoryCmd.Flags().Int("limit", 50, "max number of changes to display")
	canvasApplyCmd.Flags().StringSlice("insights", nil, "insight ids to evaluate (comma separated)")
	canvasApplyCmd.Flags().Bool("preview", false, "evaluate without saving")

	canvasCmd.AddCommand(canvasShowCmd)
	canvasCmd.AddCommand(canvasHistoryCmd)
	canvasCmd.AddCommand(canvasApplyCmd)
	rootCmd.AddCommand(canvasCmd)
}

// formatChanges writes a tabular list of applied changes to w.
func formatChanges(out io.Writer, changes []model.AppliedChange) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tSECTION\tFIELD\tMODE\tRULE\tVALUE\tAPPLIED")
	_, _ = fmt.Fprintln(w, "-------\t-------\t-----\t----\t----\t-----\t-------")

	for _, c := range changes {
		value := c.NewValue
		if len(value) > 40 {
			value = value[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "v%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Version,
			c.Section,
			c.Field,
			c.Mode,
			c.Rule,
			value,
			c.AppliedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatGateResult summarizes a gate run: accepted changes, then retained
// insights with their reasons.
func formatGateResult(out io.Writer, res *canvas.Result) {
	verb := "Applied"
	if res.Preview {
		verb = "Would apply"
	}
	_, _ = fmt.Fprintf(out, "%s %d change(s); canvas version %d\n", verb, len(res.Delta.Changes), res.Version)
	if len(res.Delta.Changes) > 0 {
		formatChanges(out, res.Delta.Changes)
	}
	if len(res.Retained) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\nRetained %d insight(s):\n", len(res.Retained))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range res.Retained {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", truncateID(r.InsightID), r.Reason)
	}
	_ = w.Flush()
}
