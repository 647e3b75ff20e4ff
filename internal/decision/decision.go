package decision

import "errors"

// Score weights.
const (
	IntentWeight   = 0.4
	OutcomeWeight  = 0.4
	AltruismWeight = 0.2
)

// UnnamedOption keys the rationale of an option without a name.
const UnnamedOption = "unnamed"

// ErrNoOptions is returned when there is nothing to choose from.
var ErrNoOptions = errors.New("decision: no options")

// Option is one candidate action. Missing scores count as zero.
type Option struct {
	Name          string  `json:"name"`
	IntentScore   float64 `json:"intent_score"`
	OutcomeScore  float64 `json:"outcome_score"`
	AltruismScore float64 `json:"altruism_score"`
}

// Rationale is the scoring breakdown of one option.
type Rationale struct {
	Intent   float64 `json:"intent"`
	Outcome  float64 `json:"outcome"`
	Altruism float64 `json:"altruism"`
	Total    float64 `json:"total"`
}

// Decision is the outcome of one Decide call. It owns its rationale map;
// nothing is shared between calls.
type Decision struct {
	Choice    Option               `json:"choice"`
	Score     float64              `json:"score"`
	Rationale map[string]Rationale `json:"rationale"`
}

// Explain returns the breakdown recorded for name.
func (d Decision) Explain(name string) (Rationale, bool) {
	if name == "" {
		name = UnnamedOption
	}
	r, ok := d.Rationale[name]
	return r, ok
}

// Score combines the three inputs with the fixed weights.
func Score(o Option) float64 {
	return o.IntentScore*IntentWeight + o.OutcomeScore*OutcomeWeight + o.AltruismScore*AltruismWeight
}

// Decide returns the highest scoring option. Ties go to the earliest option;
// when names repeat, the rationale of the last one wins.
func Decide(options []Option) (Decision, error) {
	if len(options) == 0 {
		return Decision{}, ErrNoOptions
	}

	d := Decision{Rationale: make(map[string]Rationale, len(options))}
	for i, o := range options {
		total := Score(o)
		name := o.Name
		if name == "" {
			name = UnnamedOption
		}
		d.Rationale[name] = Rationale{
			Intent:   o.IntentScore,
			Outcome:  o.OutcomeScore,
			Altruism: o.AltruismScore,
			Total:    total,
		}
		if i == 0 || total > d.Score {
			d.Choice = o
			d.Score = total
		}
	}
	return d, nil
}
