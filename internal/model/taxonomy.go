package model

import "strings"

// Taxonomy is the caller-defined context a lead is judged against: who is
// selling, who they sell to, which pains matter, and how outreach should sound.
type Taxonomy struct {
	Company     CompanyProfile `yaml:"company" mapstructure:"company" json:"company"`
	Audience    Audience       `yaml:"audience" mapstructure:"audience" json:"audience"`
	PainSignals []PainSignal   `yaml:"pain_signals" mapstructure:"pain_signals" json:"pain_signals"`
	Style       Style          `yaml:"style" mapstructure:"style" json:"style"`
}

// CompanyProfile describes the seller.
type CompanyProfile struct {
	Name              string   `yaml:"name" mapstructure:"name" json:"name"`
	Product           string   `yaml:"product" mapstructure:"product" json:"product"`
	ValuePropositions []string `yaml:"value_propositions" mapstructure:"value_propositions" json:"value_propositions"`
}

// Audience describes the buyers worth pursuing.
type Audience struct {
	Industries  []string `yaml:"industries" mapstructure:"industries" json:"industries"`
	Titles      []string `yaml:"titles" mapstructure:"titles" json:"titles"`
	Locations   []string `yaml:"locations" mapstructure:"locations" json:"locations"`
	CompanySize string   `yaml:"company_size" mapstructure:"company_size" json:"company_size"`
}

// PainSignal is a named pain with example phrasings of an ideal lead.
type PainSignal struct {
	Name     string   `yaml:"name" mapstructure:"name" json:"name"`
	Examples []string `yaml:"examples" mapstructure:"examples" json:"examples"`
}

// Style is the seller's communication style for outreach.
type Style struct {
	Tone     string   `yaml:"tone" mapstructure:"tone" json:"tone"`
	Language string   `yaml:"language" mapstructure:"language" json:"language"`
	Avoid    []string `yaml:"avoid" mapstructure:"avoid" json:"avoid"`
	Prefer   []string `yaml:"prefer" mapstructure:"prefer" json:"prefer"`
}

// ExamplesFor returns up to n ideal-lead examples for every pain signal whose
// name contains one of the detected pain points (case-insensitive).
func (t Taxonomy) ExamplesFor(painPoints []string, n int) map[string][]string {
	out := make(map[string][]string)
	for _, p := range painPoints {
		needle := strings.ToLower(strings.TrimSpace(p))
		if needle == "" {
			continue
		}
		for _, sig := range t.PainSignals {
			if _, seen := out[sig.Name]; seen || len(sig.Examples) == 0 {
				continue
			}
			name := strings.ToLower(sig.Name)
			if strings.Contains(name, needle) || strings.Contains(needle, name) {
				out[sig.Name] = sig.Examples[:min(n, len(sig.Examples))]
			}
		}
	}
	return out
}
