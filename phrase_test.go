package main

import "testing"

func TestResolvePhraseScalesWithTempo(t *testing.T) {
	phrase := Phrase{Notes: []PhraseNote{
		{Channel: 3, DelayMultiplier: 0.5, DurationMultiplier: 1.0},
	}}

	notes := resolvePhrase(phrase, 2.0)
	if len(notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(notes))
	}
	if notes[0].Channel != 3 {
		t.Errorf("channel = %d, want 3", notes[0].Channel)
	}
	if notes[0].Delay != 1.0 {
		t.Errorf("delay = %v, want 1.0", notes[0].Delay)
	}
	if notes[0].Duration != 2.0 {
		t.Errorf("duration = %v, want 2.0", notes[0].Duration)
	}
}

func TestResolvePhraseSameNotesDifferentTempo(t *testing.T) {
	phrase := Phrase{Notes: []PhraseNote{
		{Channel: 0, DelayMultiplier: 1, DurationMultiplier: 0.33},
		{Channel: 1, DelayMultiplier: 2, DurationMultiplier: 0.33},
	}}

	slow := resolvePhrase(phrase, 1.0)
	fast := resolvePhrase(phrase, 0.25)

	for i := range slow {
		if slow[i].Delay != 4*fast[i].Delay {
			t.Errorf("note %d: slow delay %v is not 4x fast delay %v", i, slow[i].Delay, fast[i].Delay)
		}
		if slow[i].Duration != 4*fast[i].Duration {
			t.Errorf("note %d: slow duration %v is not 4x fast duration %v", i, slow[i].Duration, fast[i].Duration)
		}
	}
}

func TestResolvePhrasePreservesOrder(t *testing.T) {
	phrase := Phrase{Notes: []PhraseNote{
		{Channel: 5}, {Channel: 2}, {Channel: 8},
	}}

	notes := resolvePhrase(phrase, 1.0)
	want := []int{5, 2, 8}
	for i, n := range notes {
		if n.Channel != want[i] {
			t.Errorf("note %d on channel %d, want %d", i, n.Channel, want[i])
		}
	}
}

func TestResolvePhraseEmpty(t *testing.T) {
	if notes := resolvePhrase(Phrase{}, 1.0); len(notes) != 0 {
		t.Fatalf("empty phrase resolved to %d notes", len(notes))
	}
}
