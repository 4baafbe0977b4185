package chart

import (
	"fmt"
	"strings"
)

// Instrument is a part as shown to the player.
type Instrument string

// Instruments as they appear in the pickers.
const (
	Vocals  Instrument = "Vocals"
	Bass    Instrument = "Bass"
	Lead    Instrument = "Lead"
	Drums   Instrument = "Drums"
	ProBass Instrument = "Pro Bass"
	ProLead Instrument = "Pro Lead"
)

// instrumentKeys maps display names to the keys used inside songs.json.
var instrumentKeys = map[Instrument]string{
	Vocals:  "vocals",
	Bass:    "bass",
	Lead:    "guitar",
	Drums:   "drums",
	ProBass: "probass",
	ProLead: "proguitar",
}

// Instruments returns every instrument in picker order.
func Instruments() []Instrument {
	return []Instrument{Vocals, Bass, Lead, Drums, ProBass, ProLead}
}

// Key returns the chart key for the instrument.
func (i Instrument) Key() string {
	return instrumentKeys[i]
}

// ParseInstrument accepts a display name or chart key, case-insensitively.
func ParseInstrument(s string) (Instrument, error) {
	s = strings.TrimSpace(s)
	for _, inst := range Instruments() {
		if strings.EqualFold(string(inst), s) || strings.EqualFold(inst.Key(), s) {
			return inst, nil
		}
	}
	return "", fmt.Errorf("chart: unknown instrument %q", s)
}

// Difficulty is a chart difficulty.
type Difficulty string

// Difficulties as they appear in the pickers.
const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
	Expert Difficulty = "Expert"
)

// Difficulties returns every difficulty in picker order.
func Difficulties() []Difficulty {
	return []Difficulty{Easy, Medium, Hard, Expert}
}

// Key returns the chart key for the difficulty.
func (d Difficulty) Key() string {
	return strings.ToLower(string(d))
}

// ParseDifficulty accepts any casing of a difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.TrimSpace(s)
	for _, d := range Difficulties() {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", fmt.Errorf("chart: unknown difficulty %q", s)
}

// Label formats a selection for status lines, e.g. "Lead  ♫  Expert".
func Label(i Instrument, d Difficulty) string {
	return fmt.Sprintf("%s  ♫  %s", i, d)
}
