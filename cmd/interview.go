package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cluvo-ai/cluvo/internal/interview"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/store"
)

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Analyze customer interviews and manage their insights",
}

// -- interview analyze --

var interviewAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Extract scored insights from an interview transcript",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := interviewRequestFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "interview")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Interviews.Process(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, out)
	},
}

// -- interview insights --

var interviewInsightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List stored insights for an idea",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		ideaID, _ := cmd.Flags().GetString("idea-id")
		typ, _ := cmd.Flags().GetString("type")
		interviewID, _ := cmd.Flags().GetString("interview-id")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		insights, err := st.ListInsights(ctx, ideaID, store.InsightFilter{
			Type:        model.InsightType(typ),
			InterviewID: interviewID,
			CurrentOnly: !all,
			Limit:       limit,
		})
		if err != nil {
			return eris.Wrap(err, "interview insights")
		}
		if len(insights) == 0 {
			fmt.Fprintln(os.Stderr, "No insights found.")
			return nil
		}
		formatInsights(os.Stdout, insights)
		return nil
	},
}

// -- interview correct --

var interviewCorrectCmd = &cobra.Command{
	Use:   "correct <insight-id>",
	Short: "Record a corrected version of an insight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		c, err := correctionFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "interview")
		if err != nil {
			return err
		}
		defer env.Close()

		fixed, err := env.Interviews.Correct(ctx, args[0], c)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, fixed)
	},
}

func init() {
	addAnalyzeFlags(interviewAnalyzeCmd)
	addCorrectFlags(interviewCorrectCmd)

	lf := interviewInsightsCmd.Flags()
	lf.String("idea-id", "", "idea to list insights for (required)")
	lf.String("type", "", "filter by insight type (pain_point, feature_request, ...)")
	lf.String("interview-id", "", "filter by interview")
	lf.Bool("all", false, "include superseded insights")
	lf.Int("limit", 100, "max number of insights to display")
	_ = interviewInsightsCmd.MarkFlagRequired("idea-id")

	interviewCmd.AddCommand(interviewAnalyzeCmd)
	interviewCmd.AddCommand(interviewInsightsCmd)
	interviewCmd.AddCommand(interviewCorrectCmd)
	rootCmd.AddCommand(interviewCmd)
}

func addAnalyzeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("idea-id", "", "idea the interview belongs to (required)")
	f.String("interview-id", "", "interview identifier (generated when empty)")
	f.String("transcript", "", "path to a plain-text transcript (required)")
	f.String("conducted-at", "", "interview date, YYYY-MM-DD (default today)")
	f.Bool("apply", false, "run the canvas gate over the new insights")
	f.Bool("preview", false, "run the canvas gate without saving the canvas")
	_ = cmd.MarkFlagRequired("idea-id")
	_ = cmd.MarkFlagRequired("transcript")
}

func addCorrectFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("type", "", "corrected insight type")
	f.String("content", "", "corrected content")
	f.String("quote", "", "corrected supporting quote")
	f.StringSlice("tags", nil, "replacement tags")
	f.Float64("impact", 0, "corrected impact score (0-10)")
}

func interviewRequestFromFlags(cmd *cobra.Command) (interview.Request, error) {
	f := cmd.Flags()
	req := interview.Request{}
	req.IdeaID, _ = f.GetString("idea-id")
	req.InterviewID, _ = f.GetString("interview-id")
	req.TranscriptRef, _ = f.GetString("transcript")
	req.Apply, _ = f.GetBool("apply")
	req.Preview, _ = f.GetBool("preview")

	if raw, _ := f.GetString("conducted-at"); raw != "" {
		at, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return req, eris.Wrapf(err, "invalid --conducted-at %q", raw)
		}
		req.ConductedAt = at
	}
	return req, nil
}

func correctionFromFlags(cmd *cobra.Command) (interview.Correction, error) {
	f := cmd.Flags()
	var c interview.Correction
	typ, _ := f.GetString("type")
	c.Type = model.InsightType(typ)
	c.Content, _ = f.GetString("content")
	c.Quote, _ = f.GetString("quote")
	c.Tags, _ = f.GetStringSlice("tags")
	if f.Changed("impact") {
		impact, _ := f.GetFloat64("impact")
		c.ImpactScore = &impact
	}

	if c.Type == "" && c.Content == "" && c.Quote == "" && len(c.Tags) == 0 && c.ImpactScore == nil {
		return c, eris.New("nothing to correct: set at least one of --type, --content, --quote, --tags, --impact")
	}
	return c, nil
}

// formatInsights writes a tabular list of insights to w.
func formatInsights(out io.Writer, insights []model.ExtractedInsight) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tCONFIDENCE\tIMPACT\tCONTENT")
	_, _ = fmt.Fprintln(w, "--\t----\t----------\t------\t-------")

	for _, in := range insights {
		content := in.Content
		if len(content) > 50 {
			content = content[:47] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f (%s)\t%.1f\t%s\n",
			truncateID(in.ID),
			in.Type,
			in.ConfidenceScore,
			in.Confidence,
			in.ImpactScore,
			content,
		)
	}
	_ = w.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write json")
}
