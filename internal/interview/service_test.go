package interview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cluvo-ai/cluvo/internal/canvas"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/store"
)

// Two same-type insights sharing a tag with strong, verbatim evidence score
// above the gate's confidence threshold.
const strongExtraction = `{
	"insights": [
		{
			"type": "pain_point",
			"content": "Payroll eats two days a month",
			"quote": "Payroll takes me two full days every month",
			"tags": ["payroll"],
			"intensity": 1, "specificity": 1, "impact_score": 8,
			"bmc_sections": ["value_propositions"],
			"bmc_deltas": [{"section": "value_propositions", "field": "pain_relievers", "value": "Automated payroll runs"}]
		},
		{
			"type": "pain_point",
			"content": "Existing tools are too expensive",
			"quote": "it was too expensive",
			"tags": ["payroll", "price"],
			"intensity": 1, "specificity": 1, "impact_score": 7.5,
			"bmc_sections": ["customer_segments"],
			"bmc_deltas": [{"section": "customer_segments", "field": "segments", "value": "Price-sensitive small businesses"}]
		}
	]
}`

func newTestService(t *testing.T, body string) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "interviews.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	c, _ := fixedCompleter(body)
	svc := NewService(nil, newTestExtractor(c), st, canvas.NewUpdater(st, canvas.DefaultPolicy()))
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("svc-%d", n)
	}
	svc.now = func() time.Time { return testNow }
	return svc, st
}

func TestService_ProcessStoresAndApplies(t *testing.T) {
	svc, st := newTestService(t, strongExtraction)
	ctx := context.Background()

	out, err := svc.Process(ctx, Request{IdeaID: "idea-1", InterviewID: "int-1", Text: sampleTranscript, Apply: true})
	require.NoError(t, err)
	require.Len(t, out.Analysis.Insights, 2)
	for _, in := range out.Analysis.Insights {
		assert.GreaterOrEqual(t, in.ConfidenceScore, 0.8)
	}

	stored, err := st.ListInsights(ctx, "idea-1", store.InsightFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	require.NotNil(t, out.Canvas)
	assert.Equal(t, 1, out.Canvas.Version)
	assert.Len(t, out.Canvas.Delta.Changes, 2)

	c, err := st.LoadCanvas(ctx, "idea-1")
	require.NoError(t, err)
	f, _ := c.Field(model.SectionValuePropositions, "pain_relievers")
	assert.True(t, f.HasItem("Automated payroll runs"))
}

func TestService_ProcessPreview(t *testing.T) {
	svc, st := newTestService(t, strongExtraction)
	ctx := context.Background()

	out, err := svc.Process(ctx, Request{IdeaID: "idea-1", Text: sampleTranscript, Preview: true})
	require.NoError(t, err)
	assert.Equal(t, "svc-1", out.Analysis.InterviewID)
	require.NotNil(t, out.Canvas)
	assert.True(t, out.Canvas.Preview)
	assert.True(t, out.Canvas.Changed())

	c, err := st.LoadCanvas(ctx, "idea-1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Version)
}

func TestService_ProcessFromFile(t *testing.T) {
	svc, st := newTestService(t, strongExtraction)
	path := filepath.Join(t.TempDir(), "int-7.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleTranscript), 0o600))

	out, err := svc.Process(context.Background(), Request{IdeaID: "idea-1", InterviewID: "int-7", TranscriptRef: path})
	require.NoError(t, err)
	assert.Nil(t, out.Canvas)

	stored, err := st.ListInsights(context.Background(), "idea-1", store.InsightFilter{InterviewID: "int-7"})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestService_ProcessErrors(t *testing.T) {
	svc, _ := newTestService(t, strongExtraction)
	ctx := context.Background()

	_, err := svc.Process(ctx, Request{Text: sampleTranscript})
	assert.Error(t, err)

	_, err = svc.Process(ctx, Request{IdeaID: "idea-1"})
	assert.Error(t, err)

	_, err = svc.Process(ctx, Request{IdeaID: "idea-1", TranscriptRef: filepath.Join(t.TempDir(), "missing.txt")})
	var te *TranscriptionError
	assert.True(t, errors.As(err, &te))

	svc.updater = nil
	_, err = svc.Process(ctx, Request{IdeaID: "idea-1", Text: sampleTranscript, Apply: true})
	assert.Error(t, err)
}

func TestService_CorrectSupersedes(t *testing.T) {
	svc, st := newTestService(t, strongExtraction)
	ctx := context.Background()

	out, err := svc.Process(ctx, Request{IdeaID: "idea-1", InterviewID: "int-1", Text: sampleTranscript})
	require.NoError(t, err)
	orig := out.Analysis.Insights[1]

	impact := 9.0
	fixed, err := svc.Correct(ctx, orig.ID, Correction{Content: "Every tool they tried was too expensive", Tags: []string{"Price"}, ImpactScore: &impact})
	require.NoError(t, err)
	assert.Equal(t, orig.ID, fixed.SupersedesID)
	assert.Equal(t, []string{"price"}, fixed.Tags)
	assert.Equal(t, 9.0, fixed.ImpactScore)
	assert.Equal(t, orig.Quote, fixed.Quote)

	current, err := st.ListInsights(ctx, "idea-1", store.InsightFilter{CurrentOnly: true})
	require.NoError(t, err)
	require.Len(t, current, 2)
	ids := []string{current[0].ID, current[1].ID}
	assert.Contains(t, ids, fixed.ID)
	assert.NotContains(t, ids, orig.ID)

	loaded, err := st.LoadInsights(ctx, []string{orig.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Existing tools are too expensive", loaded[0].Content)

	bad := 11.0
	_, err = svc.Correct(ctx, orig.ID, Correction{ImpactScore: &bad})
	assert.Error(t, err)

	_, err = svc.Correct(ctx, "nope", Correction{Content: "x"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
