package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cluvo-ai/cluvo/internal/model"
)

func testReport() *model.CompetitorReport {
	return &model.CompetitorReport{
		RunID:            "run-1",
		BusinessIdea:     "AI HR tool for SMBs",
		Status:           model.RunStatusCompleted,
		TotalCompetitors: 1,
		Competitors: []model.CompetitorAnalysis{
			model.NewCompetitorAnalysis(model.CompetitorBasic{Name: "Gusto", Domain: "gusto.com", Category: model.CategoryDirect}),
		},
	}
}

func TestPrintJSON_Report(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, testReport()))

	var got model.CompetitorReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Competitors, 1)
	assert.Equal(t, "Gusto", got.Competitors[0].Basic.Name)
	assert.Contains(t, buf.String(), "\n  \"run_id\"")
}

func TestWriteXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, writeXLSXFile(path, testReport()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestWriteXLSXFile_BadPath(t *testing.T) {
	err := writeXLSXFile(filepath.Join(t.TempDir(), "missing", "report.xlsx"), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create xlsx")
}
