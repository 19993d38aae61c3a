package classifier

import (
	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/features"
	"github.com/neurosonar/neurosonar/logging"
)

// Descriptors are the secondary music qualifiers. Each is a plain threshold
// check, independent of which rule matched.
type Descriptors struct {
	Rhythm   string `json:"rhythm"`
	Arpeggio string `json:"arpeggio"`
	Balance  string `json:"balance"`
	Width    string `json:"width"`
	Volume   string `json:"volume"`
	Melody   string `json:"melody"`
}

// Result is one classification
type Result struct {
	Outcome
	Descriptors Descriptors     `json:"descriptors"`
	Features    features.Vector `json:"features"`
	Rule        int             `json:"rule"` // index of the matching rule, -1 for the fallback
}

// Matched reports whether a rule matched rather than the fallback
func (r Result) Matched() bool {
	return r.Rule >= 0
}

// Classifier evaluates an ordered decision list
type Classifier struct {
	rules    []Rule
	fallback Outcome
	logger   logging.Logger
}

// New creates a classifier with the default rule table
func New(cfg config.ClassifierConfig) *Classifier {
	return NewWithRules(DefaultRules(cfg.AsymmetryThreshold), Undefined)
}

// NewWithRules creates a classifier over an explicit decision list
func NewWithRules(rules []Rule, fallback Outcome) *Classifier {
	own := make([]Rule, len(rules))
	copy(own, rules)

	return &Classifier{
		rules:    own,
		fallback: fallback,
		logger: logging.WithFields(logging.Fields{
			"component": "activity_classifier",
			"rules":     len(own),
		}),
	}
}

// Classify returns the outcome of the first matching rule plus descriptors.
// It is a pure function of v.
func (c *Classifier) Classify(v features.Vector) Result {
	result := Result{
		Outcome:     c.fallback,
		Descriptors: Describe(v),
		Features:    v,
		Rule:        -1,
	}

	for i, rule := range c.rules {
		if rule.Match(v) {
			result.Outcome = rule.Outcome
			result.Rule = i
			break
		}
	}

	c.logger.Debug("Classified feature vector", logging.Fields{
		"activity": result.Activity,
		"rule":     result.Rule,
	})
	return result
}

// Describe derives the secondary descriptors from v
func Describe(v features.Vector) Descriptors {
	d := Descriptors{
		Rhythm:   "subtle",
		Arpeggio: "smooth",
		Balance:  "percussive",
		Width:    "focused",
		Volume:   "soft and reserved",
		Melody:   "clear and structured",
	}

	if v.BetaRel > 0.3 {
		d.Rhythm = "interwoven"
	}
	if v.GammaRel > 0.4 {
		d.Arpeggio = "glistening"
	}
	if v.Ratio > 0.5 {
		d.Balance = "harmonious"
	}
	if v.Coherence > 0.6 {
		d.Width = "expansive"
	}
	if v.RMS > 1000 {
		d.Volume = "rich and full"
	}
	if v.Entropy > 2 {
		d.Melody = "flowing and free"
	}
	return d
}
