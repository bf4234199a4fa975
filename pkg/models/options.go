package models

// GenerationOptions are caller-supplied overrides for a model's default
// generation parameters. Nil fields leave the model default in place.
type GenerationOptions struct {
	MaxNewTokens      *int     `json:"max_new_tokens,omitempty" yaml:"max_new_tokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	DoSample          *bool    `json:"do_sample,omitempty" yaml:"do_sample,omitempty"`
	TopP              *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty" yaml:"repetition_penalty,omitempty"`
}

// Parameters are the fully resolved generation parameters for one request.
type Parameters struct {
	MaxNewTokens      int     `json:"max_new_tokens" yaml:"max_new_tokens"`
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	DoSample          bool    `json:"do_sample" yaml:"do_sample"`
	TopP              float64 `json:"top_p" yaml:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty" yaml:"repetition_penalty"`
}

// Apply returns p with every override from o applied on top.
func (p Parameters) Apply(o GenerationOptions) Parameters {
	if o.MaxNewTokens != nil {
		p.MaxNewTokens = *o.MaxNewTokens
	}
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.DoSample != nil {
		p.DoSample = *o.DoSample
	}
	if o.TopP != nil {
		p.TopP = *o.TopP
	}
	if o.RepetitionPenalty != nil {
		p.RepetitionPenalty = *o.RepetitionPenalty
	}
	return p
}

// Int returns a pointer to v, for building GenerationOptions literals.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
