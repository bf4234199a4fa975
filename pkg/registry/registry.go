package registry

import (
	"github.com/pkg/errors"

	"github.com/pario-ai/chatgate/pkg/models"
)

// ErrUnknownModel is returned when an ID or alias is not in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// Registry is a read-only catalog of model descriptors.
type Registry struct {
	models []models.ModelDescriptor
	index  map[string]int
}

// New creates a Registry from the built-in catalog with extra merged over it.
// An extra descriptor replaces the built-in one with the same ID.
func New(extra []models.ModelDescriptor) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, d := range Builtin {
		r.add(d)
	}
	for _, d := range extra {
		r.add(withDefaults(d))
	}
	return r
}

func (r *Registry) add(d models.ModelDescriptor) {
	if i, ok := r.index[d.ID]; ok {
		for _, alias := range r.models[i].Aliases {
			if r.index[alias] == i && alias != d.ID {
				delete(r.index, alias)
			}
		}
		r.models[i] = d
	} else {
		r.models = append(r.models, d)
		i = len(r.models) - 1
		r.index[d.ID] = i
	}
	i := r.index[d.ID]
	for _, alias := range d.Aliases {
		if _, taken := r.index[alias]; !taken {
			r.index[alias] = i
		}
	}
}

// withDefaults fills in a descriptor that carries no parameters at all.
// Individual zero values are kept, so temperature 0 stays greedy.
func withDefaults(d models.ModelDescriptor) models.ModelDescriptor {
	if d.Parameters == (models.Parameters{}) {
		d.Parameters = DefaultParameters
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	return d
}

// List returns every descriptor in catalog order.
func (r *Registry) List() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// Get resolves an ID or alias to its descriptor.
func (r *Registry) Get(id string) (models.ModelDescriptor, error) {
	i, ok := r.index[id]
	if !ok {
		return models.ModelDescriptor{}, errors.Wrapf(ErrUnknownModel, "%q", id)
	}
	return r.models[i], nil
}

// BuildPayload shapes message with the descriptor's prompt template and
// merges opts over the descriptor's default parameters, opts winning.
func (r *Registry) BuildPayload(d models.ModelDescriptor, message string, opts models.GenerationOptions) (models.ProviderRequest, error) {
	if _, ok := r.index[d.ID]; !ok || d.ID == "" {
		return models.ProviderRequest{}, errors.Wrapf(ErrUnknownModel, "%q", d.ID)
	}
	p := d.Parameters.Apply(opts)
	return models.ProviderRequest{
		Inputs: d.Prompt(message),
		Parameters: models.ProviderParameters{
			MaxNewTokens:      p.MaxNewTokens,
			Temperature:       p.Temperature,
			DoSample:          p.DoSample,
			TopP:              p.TopP,
			RepetitionPenalty: p.RepetitionPenalty,
			ReturnFullText:    false,
		},
	}, nil
}
