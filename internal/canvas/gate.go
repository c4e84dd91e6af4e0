package canvas

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// Rule names recorded on applied changes.
const (
	RuleHighConfidence = "high_confidence"
	RuleConsensus      = "consensus"
	RuleAgreement      = "cross_interview_agreement"
)

// Retained is an insight that was kept but changed nothing.
type Retained struct {
	InsightID string `json:"insight_id"`
	Reason    string `json:"reason"`
}

// Decision is the outcome of one gate evaluation. Canvas is the next
// snapshot; it equals the input snapshot when nothing changed.
type Decision struct {
	Canvas   model.Canvas      `json:"canvas"`
	Delta    model.CanvasDelta `json:"delta"`
	Retained []Retained        `json:"retained,omitempty"`
}

// Changed reports whether the decision produced a new version.
func (d Decision) Changed() bool { return len(d.Delta.Changes) > 0 }

type deltaKey struct {
	section model.CanvasSection
	field   string
	value   string
}

func keyOf(d model.FieldDelta) deltaKey {
	return deltaKey{section: d.Section, field: d.Field, value: strings.Join(strings.Fields(strings.ToLower(d.Value)), " ")}
}

type proposal struct {
	insight *model.ExtractedInsight
	delta   model.FieldDelta
	key     deltaKey
}

// Evaluate decides which insights qualify and applies their deltas to a
// copy of current. It has no side effects besides logging.
func Evaluate(p Policy, insights []model.ExtractedInsight, current model.Canvas, now time.Time) Decision {
	dec := Decision{Canvas: current, Delta: model.CanvasDelta{IdeaID: current.IdeaID, BaseVersion: current.Version}}

	superseded := map[string]bool{}
	for _, in := range insights {
		if in.SupersedesID != "" {
			superseded[in.SupersedesID] = true
		}
	}

	var active []*model.ExtractedInsight
	reasons := map[string]string{}
	for i := range insights {
		in := &insights[i]
		switch {
		case in.IdeaID != "" && in.IdeaID != current.IdeaID:
			reasons[in.ID] = "belongs to idea " + in.IdeaID
		case superseded[in.ID]:
			reasons[in.ID] = "superseded by a later insight"
		case in.BMCImpact == nil || len(in.BMCImpact.Deltas) == 0:
			reasons[in.ID] = "no canvas changes proposed"
		default:
			active = append(active, in)
		}
	}

	var props []proposal
	for _, in := range active {
		for _, d := range in.BMCImpact.Deltas {
			props = append(props, proposal{insight: in, delta: d, key: keyOf(d)})
		}
	}
	rules := qualify(p, active, props)

	// Strongest evidence first so refinements settle deterministically.
	sort.SliceStable(props, func(i, j int) bool {
		a, b := props[i].insight, props[j].insight
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	next := current.Clone()
	nextVersion := current.Version + 1
	applied := map[deltaKey]int{}
	changedBy := map[string]bool{}
	for _, pr := range props {
		r := rules[ruleKey(pr.insight.ID, pr.key)]
		if len(r) == 0 {
			continue
		}
		ref := model.ChangeRef{InsightID: pr.insight.ID, Quote: pr.insight.Quote}
		if idx, ok := applied[pr.key]; ok {
			ch := &dec.Delta.Changes[idx]
			ch.Sources = appendRef(ch.Sources, ref)
			changedBy[pr.insight.ID] = true
			continue
		}
		ch, why := apply(p, &next, pr, ref)
		if why != "" {
			if !changedBy[pr.insight.ID] {
				reasons[pr.insight.ID] = why
			}
			continue
		}
		ch.ID = fmt.Sprintf("%s-v%d-%03d", current.IdeaID, nextVersion, len(dec.Delta.Changes)+1)
		ch.IdeaID = current.IdeaID
		ch.Version = nextVersion
		ch.Rule = strings.Join(r, ",")
		ch.AppliedAt = now
		applied[pr.key] = len(dec.Delta.Changes)
		dec.Delta.Changes = append(dec.Delta.Changes, ch)
		changedBy[pr.insight.ID] = true
		delete(reasons, pr.insight.ID)
	}

	for _, in := range active {
		if changedBy[in.ID] {
			continue
		}
		if _, ok := reasons[in.ID]; !ok {
			reasons[in.ID] = fmt.Sprintf("confidence %.2f and impact %.1f below thresholds with no consensus or cross-interview agreement",
				in.ConfidenceScore, in.ImpactScore)
		}
	}
	for _, in := range insights {
		why, ok := reasons[in.ID]
		if !ok || changedBy[in.ID] {
			continue
		}
		zap.L().Info("canvas: insight retained but not applied",
			zap.String("idea_id", current.IdeaID),
			zap.String("insight_id", in.ID),
			zap.String("reason", why),
		)
		dec.Retained = append(dec.Retained, Retained{InsightID: in.ID, Reason: why})
	}

	if dec.Changed() {
		next.Version = nextVersion
		next.UpdatedAt = now
		dec.Canvas = next
	}
	return dec
}

func ruleKey(insightID string, k deltaKey) string {
	return insightID + "\x00" + string(k.section) + "\x00" + k.field + "\x00" + k.value
}

// qualify returns the rules each (insight, delta) pair satisfies.
func qualify(p Policy, active []*model.ExtractedInsight, props []proposal) map[string][]string {
	out := map[string][]string{}
	add := func(pr proposal, rule string) {
		k := ruleKey(pr.insight.ID, pr.key)
		for _, r := range out[k] {
			if r == rule {
				return
			}
		}
		out[k] = append(out[k], rule)
	}

	// a: confident and impactful on its own.
	for _, pr := range props {
		if pr.insight.ConfidenceScore >= p.MinConfidence && pr.insight.ImpactScore >= p.MinImpact {
			add(pr, RuleHighConfidence)
		}
	}

	// b: enough same-type insights sharing a tag back the same delta.
	type group struct {
		typ model.InsightType
		key deltaKey
	}
	groups := map[group][]proposal{}
	for _, pr := range props {
		g := group{pr.insight.Type, pr.key}
		groups[g] = append(groups[g], pr)
	}
	for _, members := range groups {
		byTag := map[string][]proposal{}
		for _, pr := range members {
			for _, t := range pr.insight.Tags {
				byTag[t] = append(byTag[t], pr)
			}
		}
		for _, backers := range byTag {
			if distinctInsights(backers) < p.ConsensusInsights {
				continue
			}
			for _, pr := range backers {
				add(pr, RuleConsensus)
			}
		}
	}

	// c: most interviews that touch a section propose the same delta.
	touching := map[model.CanvasSection]map[string]bool{}
	for _, in := range active {
		for _, s := range in.BMCImpact.Sections {
			if touching[s] == nil {
				touching[s] = map[string]bool{}
			}
			touching[s][in.InterviewID] = true
		}
	}
	proposing := map[deltaKey]map[string]bool{}
	for _, pr := range props {
		if proposing[pr.key] == nil {
			proposing[pr.key] = map[string]bool{}
		}
		proposing[pr.key][pr.insight.InterviewID] = true
		if touching[pr.key.section] == nil {
			touching[pr.key.section] = map[string]bool{}
		}
		touching[pr.key.section][pr.insight.InterviewID] = true
	}
	for _, pr := range props {
		total := len(touching[pr.key.section])
		agree := len(proposing[pr.key])
		if agree < p.AgreementMinInterviews || total == 0 {
			continue
		}
		if float64(agree)/float64(total) >= p.AgreementShare {
			add(pr, RuleAgreement)
		}
	}
	return out
}

func distinctInsights(props []proposal) int {
	seen := map[string]bool{}
	for _, pr := range props {
		seen[pr.insight.ID] = true
	}
	return len(seen)
}

// apply mutates next for one qualified proposal. A non-empty reason means
// nothing changed.
func apply(p Policy, next *model.Canvas, pr proposal, ref model.ChangeRef) (model.AppliedChange, string) {
	d := pr.delta
	f, _ := next.Field(d.Section, d.Field)
	ch := model.AppliedChange{
		Section:  d.Section,
		Field:    d.Field,
		Mode:     d.Mode,
		NewValue: d.Value,
		Sources:  []model.ChangeRef{ref},
	}

	mode := d.Mode
	if mode == model.DeltaRefine && (p.protectedSection(d.Section) || p.protectedField(f)) {
		mode = model.DeltaAdd
	}
	conf := pr.insight.ConfidenceScore

	switch mode {
	case model.DeltaRefine:
		if keyOf(model.FieldDelta{Value: f.Text}).value == pr.key.value {
			return ch, "already on canvas"
		}
		if f.Text != "" && conf <= f.Confidence {
			return ch, fmt.Sprintf("existing %s.%s has confidence %.2f, not exceeded by %.2f", d.Section, d.Field, f.Confidence, conf)
		}
		ch.OldValue = f.Text
		f.Text = d.Value
		f.Confidence = conf
		f.Source = &ref
	default:
		if f.HasItem(d.Value) {
			return ch, "already on canvas"
		}
		ch.Mode = model.DeltaAdd
		f.Items = append(f.Items, model.CanvasItem{Value: d.Value, Confidence: conf, Source: &ref})
	}
	next.SetField(d.Section, d.Field, f)
	return ch, ""
}

func appendRef(refs []model.ChangeRef, ref model.ChangeRef) []model.ChangeRef {
	for _, r := range refs {
		if r.InsightID == ref.InsightID {
			return refs
		}
	}
	return append(refs, ref)
}
