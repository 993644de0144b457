package main

// resolvedNote is a phrase note expanded against a concrete tempo.
type resolvedNote struct {
	Channel  int
	Delay    float64
	Duration float64
}

// resolvePhrase expands a phrase's notes against the invoking section's
// tempo. It is a pure calculation: the same phrase resolves to slow,
// long notes in a slow section and quick hits in a fast one.
func resolvePhrase(p Phrase, tempo float64) []resolvedNote {
	notes := make([]resolvedNote, 0, len(p.Notes))
	for _, n := range p.Notes {
		notes = append(notes, resolvedNote{
			Channel:  n.Channel,
			Delay:    tempo * n.DelayMultiplier,
			Duration: tempo * n.DurationMultiplier,
		})
	}
	return notes
}
