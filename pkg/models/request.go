package models

// ProviderRequest is the JSON body POSTed to {baseURL}/{modelPath}.
type ProviderRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters ProviderParameters `json:"parameters"`
}

// ProviderParameters is the "parameters" object of a ProviderRequest.
type ProviderParameters struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	DoSample          bool    `json:"do_sample"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	ReturnFullText    bool    `json:"return_full_text"`
}
