package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationError carries every problem found in a song file, not just
// the first. Editors show the whole list so authors can fix a song in
// one pass.
type ValidationError struct {
	ID       string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("song %q has %d problem(s): %s", e.ID, len(e.Problems), strings.Join(e.Problems, "; "))
}

// Raw JSON shapes. Pointer fields make "absent" distinguishable from
// zero, which the defaulting and multiplier rules depend on.

type rawSong struct {
	Title       string               `json:"title"`
	Artist      string               `json:"artist"`
	Description string               `json:"description"`
	MP3File     string               `json:"mp3_file"`
	Tempo       *float64             `json:"tempo"`
	Sections    []rawSection         `json:"sections"`
	Phrases     map[string]rawPhrase `json:"phrases"`
}

type rawSection struct {
	Name       string        `json:"name"`
	StartTime  *float64      `json:"start_time"`
	Tempo      *float64      `json:"tempo"`
	TotalBeats *int          `json:"total_beats"`
	Sequences  []rawSequence `json:"sequences"`
	Segments   []rawSegment  `json:"segments"`
}

type rawSegment struct {
	StartTime  *float64      `json:"start_time"`
	Tempo      *float64      `json:"tempo"`
	TotalBeats *int          `json:"total_beats"`
	Sequences  []rawSequence `json:"sequences"`
}

type rawSequence struct {
	AllBeats bool        `json:"all_beats"`
	Beat     *int        `json:"beat"`
	Beats    []int       `json:"beats"`
	Actions  []rawAction `json:"actions"`
}

type rawAction struct {
	Type               string      `json:"type"`
	Channel            *int        `json:"channel"`
	Delay              *float64    `json:"delay"`
	Duration           *float64    `json:"duration"`
	DelayMultiplier    *float64    `json:"delay_multiplier"`
	DurationMultiplier *float64    `json:"duration_multiplier"`
	ID                 interface{} `json:"id"`
	Mode               *int        `json:"mode"`
	Description        string      `json:"description"`
}

type rawPhrase struct {
	Description string          `json:"description"`
	Notes       []rawPhraseNote `json:"notes"`
	Sequences   []rawPhraseNote `json:"sequences"` // legacy spelling of notes
}

type rawPhraseNote struct {
	Channel            *int     `json:"channel"`
	DelayMultiplier    *float64 `json:"delay_multiplier"`
	DurationMultiplier *float64 `json:"duration_multiplier"`
}

// ParseSong decodes and validates one song. On malformed data it
// returns a ValidationError listing every violation found.
func ParseSong(data []byte, id, path string) (*Song, error) {
	var raw rawSong
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse song %q: %w", id, err)
	}

	problems := validateSongData(&raw)
	if len(problems) > 0 {
		return nil, &ValidationError{ID: id, Problems: problems}
	}

	song := &Song{
		ID:          id,
		Path:        path,
		Title:       raw.Title,
		Artist:      raw.Artist,
		Description: raw.Description,
		MP3File:     raw.MP3File,
		Phrases:     make(map[string]Phrase, len(raw.Phrases)),
	}

	for _, rs := range raw.Sections {
		song.Sections = append(song.Sections, buildSection(rs, raw.Tempo))
	}
	for pid, rp := range raw.Phrases {
		song.Phrases[pid] = buildPhrase(rp)
	}
	return song, nil
}

// LoadSongFile reads and parses a song JSON file. The song id is the
// file name without its extension.
func LoadSongFile(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read song file: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseSong(data, id, path)
}

// validateSongData collects every violation in the raw song.
func validateSongData(raw *rawSong) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if raw.MP3File == "" {
		add("missing 'mp3_file' field")
	}
	if raw.Tempo != nil && *raw.Tempo <= 0 {
		add("'tempo' must be a positive number")
	}

	for i, sec := range raw.Sections {
		label := fmt.Sprintf("section %d", i)
		if sec.Name != "" {
			label = fmt.Sprintf("section %q", sec.Name)
		} else {
			add("%s: missing 'name' field", label)
		}

		if sec.StartTime == nil && len(sec.Segments) == 0 {
			add("%s: must have either 'start_time' or 'segments'", label)
		}
		if sec.StartTime != nil && *sec.StartTime < 0 {
			add("%s: 'start_time' must be a non-negative number", label)
		}
		if sec.Tempo != nil && *sec.Tempo <= 0 {
			add("%s: 'tempo' must be a positive number", label)
		}
		if sec.TotalBeats != nil && *sec.TotalBeats < 0 {
			add("%s: 'total_beats' must be a non-negative integer", label)
		}

		if len(sec.Segments) == 0 {
			if sec.Tempo == nil && raw.Tempo == nil {
				add("%s: missing 'tempo' field (must be at root, section, or segment level)", label)
			}
			problems = append(problems, validateSequences(label, sec.Sequences)...)
			continue
		}

		for j, seg := range sec.Segments {
			segLabel := fmt.Sprintf("%s segment %d", label, j)
			if seg.StartTime == nil {
				add("%s: missing 'start_time' field", segLabel)
			} else if *seg.StartTime < 0 {
				add("%s: 'start_time' must be a non-negative number", segLabel)
			}
			if seg.Tempo != nil && *seg.Tempo <= 0 {
				add("%s: 'tempo' must be a positive number", segLabel)
			}
			if seg.TotalBeats != nil && *seg.TotalBeats < 0 {
				add("%s: 'total_beats' must be a non-negative integer", segLabel)
			}
			if seg.Tempo == nil && sec.Tempo == nil && raw.Tempo == nil {
				add("%s: missing 'tempo' field (must be at root, section, or segment level)", segLabel)
			}
			problems = append(problems, validateSequences(segLabel, seg.Sequences)...)
		}
	}

	for pid, phrase := range raw.Phrases {
		if len(phrase.Notes) == 0 && len(phrase.Sequences) == 0 {
			add("phrase %q: must have a 'notes' list", pid)
		}
	}

	return problems
}

func validateSequences(label string, seqs []rawSequence) []string {
	var problems []string
	for i, seq := range seqs {
		for _, act := range seq.Actions {
			switch act.Type {
			case "note", "phrase", "all_channels", "step_up", "step_down", "flash_mode":
			case "":
				problems = append(problems, fmt.Sprintf("%s sequence %d: action missing 'type' field", label, i))
			default:
				problems = append(problems, fmt.Sprintf("%s sequence %d: unknown action type %q", label, i, act.Type))
			}
		}
	}
	return problems
}

// buildSection converts a validated raw section to the typed model,
// resolving tempo inheritance. Legacy files occasionally carry both
// timing and segments; segments win, matching how such songs played.
func buildSection(raw rawSection, rootTempo *float64) Section {
	sec := Section{Name: raw.Name}

	if len(raw.Segments) > 0 {
		if raw.StartTime != nil {
			logrus.Warnf("section %q has both start_time and segments, using segments", raw.Name)
		}
		for _, rseg := range raw.Segments {
			seg := Segment{
				StartTime:  floatOr(rseg.StartTime, 0),
				Tempo:      inheritTempo(rseg.Tempo, raw.Tempo, rootTempo),
				TotalBeats: intOr(rseg.TotalBeats, 0),
				Sequences:  buildSequences(rseg.Sequences),
			}
			sec.Segments = append(sec.Segments, seg)
		}
		return sec
	}

	sec.StartTime = floatOr(raw.StartTime, 0)
	sec.Tempo = inheritTempo(raw.Tempo, rootTempo, nil)
	sec.TotalBeats = intOr(raw.TotalBeats, 0)
	sec.Sequences = buildSequences(raw.Sequences)
	return sec
}

func buildSequences(raws []rawSequence) []Sequence {
	seqs := make([]Sequence, 0, len(raws))
	for _, rs := range raws {
		seq := Sequence{
			Beats: BeatSelector{
				EveryBeat: rs.AllBeats,
				Beat:      intOr(rs.Beat, 0),
				Beats:     rs.Beats,
			},
		}
		for _, ra := range rs.Actions {
			seq.Actions = append(seq.Actions, buildAction(ra))
		}
		seqs = append(seqs, seq)
	}
	return seqs
}

func buildAction(raw rawAction) Action {
	switch raw.Type {
	case "note":
		return Action{Note: &NoteAction{
			Channel:            intOr(raw.Channel, 0),
			Delay:              floatOr(raw.Delay, 0),
			Duration:           floatOr(raw.Duration, 0.1),
			DelayMultiplier:    floatOr(raw.DelayMultiplier, 0),
			DurationMultiplier: floatOr(raw.DurationMultiplier, 0),
			HasDelayMult:       raw.DelayMultiplier != nil,
			HasDurationMult:    raw.DurationMultiplier != nil,
		}}
	case "phrase":
		return Action{Phrase: &PhraseAction{ID: phraseIDString(raw.ID)}}
	case "all_channels":
		return Action{AllChannels: &AllChannelsAction{
			Duration:           floatOr(raw.Duration, 0.25),
			DurationMultiplier: floatOr(raw.DurationMultiplier, 1.0),
		}}
	case "step_up":
		return Action{StepUp: &StepUpAction{}}
	case "step_down":
		return Action{StepDown: &StepDownAction{}}
	case "flash_mode":
		return Action{FlashMode: &FlashModeAction{Mode: intOr(raw.Mode, 0)}}
	}
	// Unknown types were already rejected during validation.
	return Action{}
}

// buildPhrase normalizes a phrase, accepting the legacy form where the
// notes list was spelled "sequences". Phrase notes default to firing on
// the beat with a third of a beat of light.
func buildPhrase(raw rawPhrase) Phrase {
	notes := raw.Notes
	if len(notes) == 0 {
		notes = raw.Sequences
	}
	p := Phrase{Description: raw.Description}
	for _, rn := range notes {
		p.Notes = append(p.Notes, PhraseNote{
			Channel:            intOr(rn.Channel, 0),
			DelayMultiplier:    floatOr(rn.DelayMultiplier, 0),
			DurationMultiplier: floatOr(rn.DurationMultiplier, 0.33),
		})
	}
	return p
}

// phraseIDString coerces a phrase reference to the string key used in
// the phrase table. Song files written by hand often use bare numbers.
func phraseIDString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "0"
	case string:
		return x
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// inheritTempo resolves the seconds-per-beat for a timing unit from the
// nearest level that sets one. Validation guarantees some level did.
func inheritTempo(own, parent, root *float64) float64 {
	for _, p := range []*float64{own, parent, root} {
		if p != nil {
			return *p
		}
	}
	return 1.0
}

// Library holds every playable song found in a directory, ordered by
// the directory's playlist when one exists.
type Library struct {
	Dir   string
	Songs []*Song
}

// playlistFile is the optional ordering file in a songs directory.
type playlistFile struct {
	Playlist []string `json:"playlist"`
}

// LoadLibrary scans dir for song JSON files, skipping any that fail
// validation, and orders the result by playlist.json when present,
// alphabetically otherwise.
func LoadLibrary(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read songs dir: %w", err)
	}

	byID := make(map[string]*Song)
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == "playlist.json" {
			continue
		}
		song, err := LoadSongFile(filepath.Join(dir, name))
		if err != nil {
			logrus.Warnf("skipping %s: %v", name, err)
			continue
		}
		byID[song.ID] = song
		ids = append(ids, song.ID)
	}
	sort.Strings(ids)

	lib := &Library{Dir: dir}
	ordered := playlistOrder(dir, ids)
	for _, id := range ordered {
		lib.Songs = append(lib.Songs, byID[id])
	}

	if len(lib.Songs) == 0 {
		logrus.Warnf("no playable songs in %s", dir)
	}
	return lib, nil
}

// playlistOrder applies playlist.json to the alphabetical id list:
// listed songs first in playlist order, unlisted songs after.
func playlistOrder(dir string, ids []string) []string {
	data, err := os.ReadFile(filepath.Join(dir, "playlist.json"))
	if err != nil {
		return ids
	}
	var pl playlistFile
	if err := json.Unmarshal(data, &pl); err != nil {
		logrus.Warnf("ignoring malformed playlist.json: %v", err)
		return ids
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	var ordered []string
	listed := make(map[string]bool)
	for _, id := range pl.Playlist {
		if !known[id] {
			logrus.Warnf("playlist.json names unknown song %q", id)
			continue
		}
		if listed[id] {
			continue
		}
		ordered = append(ordered, id)
		listed[id] = true
	}
	for _, id := range ids {
		if !listed[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered
}

// Song looks a song up by id.
func (l *Library) Song(id string) (*Song, bool) {
	for _, s := range l.Songs {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Summaries lists the library in playback order.
func (l *Library) Summaries() []SongSummary {
	out := make([]SongSummary, 0, len(l.Songs))
	for _, s := range l.Songs {
		out = append(out, s.Summary())
	}
	return out
}
