package discovery

import "github.com/cluvo-ai/cluvo/internal/model"

// competitorSet deduplicates competitors by Key, keeping first-seen order.
// A later duplicate only fills fields the earlier entry lacks.
type competitorSet struct {
	order []string
	byKey map[string]model.CompetitorBasic
	// alias maps a secondary key to the key the entry is stored under.
	alias map[string]string
	// names maps folded names to keys so that an entry without a domain
	// merges with one that has it.
	names map[string]string
}

func newCompetitorSet() *competitorSet {
	return &competitorSet{
		byKey: map[string]model.CompetitorBasic{},
		alias: map[string]string{},
		names: map[string]string{},
	}
}

// add reports whether c was new.
func (s *competitorSet) add(c model.CompetitorBasic) bool {
	key := c.Key()
	if k, ok := s.alias[key]; ok {
		key = k
	}
	if existing, ok := s.byKey[key]; ok {
		s.byKey[key] = existing.Merge(c)
		return false
	}

	name := model.FoldName(c.Name)
	if prev, ok := s.names[name]; ok && name != "" {
		existing := s.byKey[prev]
		if existing.Domain == "" || c.Domain == "" {
			s.byKey[prev] = existing.Merge(c)
			s.alias[key] = prev
			return false
		}
	}

	s.order = append(s.order, key)
	s.byKey[key] = c
	if _, ok := s.names[name]; !ok && name != "" {
		s.names[name] = key
	}
	return true
}

func (s *competitorSet) len() int { return len(s.order) }

// list returns up to limit competitors in first-seen order.
func (s *competitorSet) list(limit int) []model.CompetitorBasic {
	n := len(s.order)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]model.CompetitorBasic, 0, n)
	for _, k := range s.order[:n] {
		out = append(out, s.byKey[k])
	}
	return out
}
