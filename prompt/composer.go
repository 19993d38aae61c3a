package prompt

import (
	"fmt"
	"strings"

	"github.com/neurosonar/neurosonar/classifier"
)

// Prompt is the text handed to the music-generation collaborator, plus the
// bare fields it needs to build its own request.
type Prompt struct {
	Text        string `json:"text"`
	Activity    string `json:"activity"`
	Mood        string `json:"mood"`
	Tempo       string `json:"tempo"`
	Genre       string `json:"genre"`
	Instruments string `json:"instruments"`
}

// Request is the one-line generation request, e.g.
// "Generate a calm and floating Ambient loop with synth pads, soft piano, ethereal strings, delicate and slow tempo"
func (p Prompt) Request() string {
	return fmt.Sprintf("Generate a %s %s loop with %s, %s tempo", p.Mood, p.Genre, p.Instruments, p.Tempo)
}

// Compose renders a classification result. It has no state and cannot fail.
func Compose(r classifier.Result) Prompt {
	d := r.Descriptors

	var b strings.Builder
	fmt.Fprintf(&b, "\nMental state: %s — %s\n", r.Activity, r.Mood)
	fmt.Fprintf(&b, "Music: %s tempo, %s rhythm, %s arpeggios, %s harmony, %s texture, %s stereo, %s volume, %s melody.\n",
		r.Tempo, d.Rhythm, d.Arpeggio, r.Harmony, d.Balance, d.Width, d.Volume, d.Melody)
	fmt.Fprintf(&b, "Genre: %s | Instruments: %s\n", r.Genre, r.Instruments)

	return Prompt{
		Text:        b.String(),
		Activity:    r.Activity,
		Mood:        r.Mood,
		Tempo:       r.Tempo,
		Genre:       r.Genre,
		Instruments: r.Instruments,
	}
}
