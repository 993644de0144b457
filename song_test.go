package main

import "testing"

func TestBeatSelectorMatches(t *testing.T) {
	cases := []struct {
		name string
		sel  BeatSelector
		beat int
		want bool
	}{
		{"every beat", BeatSelector{EveryBeat: true}, 7, true},
		{"single beat hit", BeatSelector{Beat: 3}, 3, true},
		{"single beat miss", BeatSelector{Beat: 3}, 4, false},
		{"list hit", BeatSelector{Beats: []int{2, 4, 6}}, 4, true},
		{"list miss", BeatSelector{Beats: []int{2, 4, 6}}, 5, false},
		{"empty never matches", BeatSelector{}, 1, false},
		{"zero beat field ignored", BeatSelector{Beat: 0}, 0, false},
	}
	for _, c := range cases {
		if got := c.sel.Matches(c.beat); got != c.want {
			t.Errorf("%s: Matches(%d) = %v, want %v", c.name, c.beat, got, c.want)
		}
	}
}

func TestSectionSimple(t *testing.T) {
	simple := Section{Name: "verse", StartTime: 1, Tempo: 0.5}
	if !simple.Simple() {
		t.Error("section without segments is not Simple")
	}
	split := Section{Name: "bridge", Segments: []Segment{{StartTime: 10, Tempo: 0.5}}}
	if split.Simple() {
		t.Error("segmented section reports Simple")
	}
}

func TestSongSummary(t *testing.T) {
	song := &Song{
		ID:      "carol",
		Title:   "Carol of the Bells",
		Artist:  "Trans-Siberian Orchestra",
		MP3File: "carol.mp3",
		Sections: []Section{
			{Name: "a"}, {Name: "b"},
		},
	}
	sum := song.Summary()
	if sum.ID != "carol" || sum.Sections != 2 {
		t.Errorf("summary = %+v", sum)
	}
}
