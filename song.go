package main

// Song is the parsed, validated description of one show: metadata, the
// audio file it runs against, its timed sections, and a table of
// reusable phrases. A Song never changes after loading; switching songs
// replaces the whole structure.
type Song struct {
	ID          string
	Path        string
	Title       string
	Artist      string
	Description string
	MP3File     string
	Sections    []Section
	Phrases     map[string]Phrase
}

// Section is a named span of the song with its own beat grid. A simple
// section carries timing and sequences itself; a segmented section
// delegates both to its segments. Loading guarantees exactly one form.
type Section struct {
	Name       string
	StartTime  float64
	Tempo      float64
	TotalBeats int
	Sequences  []Sequence
	Segments   []Segment
}

// Simple reports whether the section carries its own timing rather than
// being split into segments.
func (s *Section) Simple() bool { return len(s.Segments) == 0 }

// Segment is a sub-span of a section with independent timing, used for
// songs that change tempo partway through a section.
type Segment struct {
	StartTime  float64
	Tempo      float64
	TotalBeats int
	Sequences  []Sequence
}

// Sequence pairs a beat selector with the actions to run on matching
// beats.
type Sequence struct {
	Beats   BeatSelector
	Actions []Action
}

// BeatSelector decides which beats of the owning section a sequence
// fires on: every beat, one beat, or a list of beats. Beat numbers are
// 1-indexed.
type BeatSelector struct {
	EveryBeat bool
	Beat      int
	Beats     []int
}

// Matches reports whether the selector fires on the given beat.
func (s BeatSelector) Matches(beat int) bool {
	if s.EveryBeat {
		return true
	}
	if s.Beat > 0 && s.Beat == beat {
		return true
	}
	for _, b := range s.Beats {
		if b == beat {
			return true
		}
	}
	return false
}

// Action is the one-of container for a sequence action. Loading sets
// exactly one field, so executing an action is a nil check rather than
// a string comparison.
type Action struct {
	Note        *NoteAction
	Phrase      *PhraseAction
	AllChannels *AllChannelsAction
	StepUp      *StepUpAction
	StepDown    *StepDownAction
	FlashMode   *FlashModeAction
}

// NoteAction turns one channel on, optionally after a delay, for a
// duration. Delay and duration each come in an absolute form (seconds)
// and a tempo-relative multiplier form; a multiplier that is present
// and positive wins over the absolute value.
type NoteAction struct {
	Channel            int
	Delay              float64
	Duration           float64
	DelayMultiplier    float64
	DurationMultiplier float64
	HasDelayMult       bool
	HasDurationMult    bool
}

// PhraseAction plays a phrase from the song's phrase table.
type PhraseAction struct {
	ID string
}

// AllChannelsAction lights the whole rig at once. An explicit positive
// duration wins; otherwise the duration is the multiplier scaled by the
// current tempo.
type AllChannelsAction struct {
	Duration           float64
	DurationMultiplier float64
}

// StepUpAction lights channels one after another in the rig's fixed
// visual order.
type StepUpAction struct{}

// StepDownAction darkens channels one after another in the rig's fixed
// visual order.
type StepDownAction struct{}

// FlashModeAction announces a flash mode change to whatever presentation
// layer is listening. It has no channel-level effect of its own.
type FlashModeAction struct {
	Mode int
}

// Phrase is a reusable, tempo-relative bundle of notes. Phrases carry no
// tempo of their own; they stretch to the tempo of whichever section
// invokes them.
type Phrase struct {
	Description string
	Notes       []PhraseNote
}

// PhraseNote is one channel hit within a phrase, expressed in beats.
type PhraseNote struct {
	Channel            int
	DelayMultiplier    float64
	DurationMultiplier float64
}

// SongSummary is the library listing entry for one song.
type SongSummary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Description string  `json:"description"`
	MP3File     string  `json:"mp3_file"`
	Sections    int     `json:"sections"`
	Length      float64 `json:"length,omitempty"`
}

// Summary flattens the song's metadata for listings.
func (s *Song) Summary() SongSummary {
	return SongSummary{
		ID:          s.ID,
		Title:       s.Title,
		Artist:      s.Artist,
		Description: s.Description,
		MP3File:     s.MP3File,
		Sections:    len(s.Sections),
	}
}
