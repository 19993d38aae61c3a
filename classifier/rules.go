package classifier

import (
	"math"

	"github.com/neurosonar/neurosonar/features"
)

// Outcome is the music description attached to a mental-state label
type Outcome struct {
	Activity    string `json:"activity"`
	Mood        string `json:"mood"`
	Tempo       string `json:"tempo"`
	Harmony     string `json:"harmony"`
	Genre       string `json:"genre"`
	Instruments string `json:"instruments"`
}

// Rule pairs a predicate with the outcome it selects
type Rule struct {
	Match   func(v features.Vector) bool
	Outcome Outcome
}

// Undefined is returned when no rule matches
var Undefined = Outcome{
	Activity:    "Undefined",
	Mood:        "neutral, unknown",
	Tempo:       "ambiguous",
	Harmony:     "indeterminate",
	Genre:       "Experimental",
	Instruments: "ambient drones, field recordings",
}

// DefaultRules returns the ordered decision list. Regions overlap, so order
// decides: the first matching rule wins. asymThreshold is the |alpha_asym|
// bound of the Emotional Response rule.
func DefaultRules(asymThreshold float64) []Rule {
	return []Rule{
		{
			Match: func(v features.Vector) bool {
				return v.ThetaRel > 0.5 && v.AlphaRel > 0.3 && v.BetaRel < 0.1
			},
			Outcome: Outcome{
				Activity:    "Meditation",
				Mood:        "calm and floating",
				Tempo:       "delicate and slow",
				Harmony:     "soothing major",
				Genre:       "Ambient",
				Instruments: "synth pads, soft piano, ethereal strings",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.BetaRel > 0.4 && v.AlphaRel < 0.3
			},
			Outcome: Outcome{
				Activity:    "Concentration",
				Mood:        "sharp and focused",
				Tempo:       "steady, with purpose",
				Harmony:     "minimal, structured",
				Genre:       "Jazz",
				Instruments: "electric guitar, piano, subtle synths",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.GammaRel > 0.4 && math.Abs(v.AlphaAsym) > asymThreshold
			},
			Outcome: Outcome{
				Activity:    "Emotional Response",
				Mood:        "dramatic and intense",
				Tempo:       "building, expressive",
				Harmony:     "fiery, with tension",
				Genre:       "Cinematic",
				Instruments: "violin, cinematic percussion, electronic elements",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.AlphaRel > 0.4 && v.BetaRel < 0.2
			},
			Outcome: Outcome{
				Activity:    "Relaxation",
				Mood:        "peaceful and serene",
				Tempo:       "slow and flowing",
				Harmony:     "gentle, uplifting major",
				Genre:       "Classical",
				Instruments: "grand piano, soft strings, gentle harp",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.BetaRel < 0.15 && v.GammaRel < 0.2 && v.AlphaRel > 0.35
			},
			Outcome: Outcome{
				Activity:    "Dreamy Relaxation",
				Mood:        "light and drifting",
				Tempo:       "slow and drifting",
				Harmony:     "majestic and wide",
				Genre:       "New Age",
				Instruments: "flute, chimes, light percussion, ambient pads",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.GammaRel > 0.5
			},
			Outcome: Outcome{
				Activity:    "High Energy",
				Mood:        "vibrant and energetic",
				Tempo:       "fast and pulsating",
				Harmony:     "bright and powerful",
				Genre:       "Electronic Dance Music (EDM)",
				Instruments: "synth leads, heavy bass, electronic drums, risers",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.ThetaRel > 0.3 && v.AlphaRel > 0.3
			},
			Outcome: Outcome{
				Activity:    "Focused Relaxation",
				Mood:        "calm yet alert",
				Tempo:       "moderate and flowing",
				Harmony:     "relaxed major",
				Genre:       "Chillwave",
				Instruments: "smooth synths, soft drums, electric guitar",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.AlphaAsym < 0 && v.BetaRel > 0.3
			},
			Outcome: Outcome{
				Activity:    "Stress",
				Mood:        "tense and anxious",
				Tempo:       "fast and unpredictable",
				Harmony:     "discordant, with tension",
				Genre:       "Industrial",
				Instruments: "distorted guitars, harsh synths, aggressive drums",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.BetaRel > 0.2 && v.GammaRel > 0.3
			},
			Outcome: Outcome{
				Activity:    "Excitement",
				Mood:        "enthusiastic and lively",
				Tempo:       "quick and catchy",
				Harmony:     "major with energy",
				Genre:       "Pop",
				Instruments: "electric guitar, synth bass, upbeat drums, claps",
			},
		},
		{
			Match: func(v features.Vector) bool {
				return v.AlphaRel > 0.35 && v.BetaRel < 0.25
			},
			Outcome: Outcome{
				Activity:    "Euphoria",
				Mood:        "elated and joyful",
				Tempo:       "upbeat and fast",
				Harmony:     "bright, major",
				Genre:       "Rock",
				Instruments: "electric guitar, drums, bass, catchy melodies",
			},
		},
	}
}
