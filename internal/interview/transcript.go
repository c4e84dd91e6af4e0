// Package interview turns customer-interview transcripts into scored
// insights.
package interview

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// Transcriber produces a transcript from a media or text reference.
type Transcriber interface {
	Transcribe(ctx context.Context, ref string) (*model.Transcript, error)
}

// TranscriptionError reports a reference that could not be transcribed.
type TranscriptionError struct {
	Ref string
	Err error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return "interview: transcription of " + e.Ref + " failed"
	}
	return "interview: transcription of " + e.Ref + " failed: " + e.Err.Error()
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// TextTranscriber reads plain-text transcripts from disk.
type TextTranscriber struct{}

// Transcribe reads the file at ref and parses it.
func (TextTranscriber) Transcribe(ctx context.Context, ref string) (*model.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(ref)
	if err != nil {
		return nil, &TranscriptionError{Ref: ref, Err: err}
	}
	t := ParseTranscript(string(raw))
	if strings.TrimSpace(t.Text) == "" {
		return nil, &TranscriptionError{Ref: ref}
	}
	return t, nil
}

// [mm:ss] or [hh:mm:ss], optionally followed by "Speaker:".
var turnRe = regexp.MustCompile(`^\[(?:(\d{1,2}):)?(\d{1,2}):(\d{2})\]\s*(?:([^:\[\]]{1,40}):\s+)?(.*)$`)

// ParseTranscript splits text into speaker turns. Lines starting with a
// timestamp open a new turn; other lines continue the current one.
func ParseTranscript(text string) *model.Transcript {
	t := &model.Transcript{}
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)

		m := turnRe.FindStringSubmatch(line)
		if m == nil {
			if n := len(t.Segments); n > 0 {
				t.Segments[n-1].Text = strings.TrimSpace(t.Segments[n-1].Text + " " + line)
			} else {
				t.Segments = append(t.Segments, model.TranscriptSegment{Text: line})
			}
			continue
		}
		start := seconds(m[1], m[2], m[3])
		t.Segments = append(t.Segments, model.TranscriptSegment{
			Speaker: strings.TrimSpace(m[4]),
			Start:   &start,
			Text:    strings.TrimSpace(m[5]),
		})
	}
	t.Text = strings.Join(lines, "\n")
	return t
}

func seconds(h, m, s string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	return float64(hh*3600 + mm*60 + ss)
}
