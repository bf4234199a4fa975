package registry

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/chatgate/pkg/models"
)

func TestListReturnsBuiltinCatalog(t *testing.T) {
	r := New(nil)
	list := r.List()
	require.Len(t, list, len(Builtin))
	assert.Equal(t, "krishna-saarthi-counselor", list[0].ID)

	// Mutating the returned slice must not affect the registry.
	list[0].ID = "mutated"
	d, err := r.Get("krishna-saarthi-counselor")
	require.NoError(t, err)
	assert.Equal(t, "krishna-saarthi-counselor", d.ID)
}

func TestGetByAlias(t *testing.T) {
	r := New(nil)
	d, err := r.Get("saarthi")
	require.NoError(t, err)
	assert.Equal(t, "krishna-saarthi-counselor", d.ID)
}

func TestGetUnknown(t *testing.T) {
	r := New(nil)
	_, err := r.Get("no-such-model")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModel))
}

func TestConfigModelOverridesBuiltin(t *testing.T) {
	r := New([]models.ModelDescriptor{
		{ID: "general-assistant", Path: "acme/general-v2"},
		{ID: "haiku-poet", Path: "acme/haiku-7b", Aliases: []string{"general"}},
	})

	d, err := r.Get("general-assistant")
	require.NoError(t, err)
	assert.Equal(t, "acme/general-v2", d.Path)
	assert.Equal(t, DefaultParameters.MaxNewTokens, d.Parameters.MaxNewTokens, "zero parameters are defaulted")
	assert.Equal(t, "general-assistant", d.Name)

	// The override dropped the old aliases, so "general" now belongs to haiku-poet.
	d, err = r.Get("general")
	require.NoError(t, err)
	assert.Equal(t, "haiku-poet", d.ID)
	assert.Len(t, r.List(), len(Builtin)+1)
}

func TestExplicitZeroTemperatureIsKept(t *testing.T) {
	r := New([]models.ModelDescriptor{{
		ID:   "greedy",
		Path: "acme/greedy-7b",
		Parameters: models.Parameters{
			MaxNewTokens: 64,
			Temperature:  0,
			TopP:         1,
		},
	}})

	d, err := r.Get("greedy")
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Parameters.Temperature)

	req, err := r.BuildPayload(d, "hi", models.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, req.Parameters.Temperature)
	assert.Equal(t, 64, req.Parameters.MaxNewTokens)
}

func TestBuildPayloadConversationalTemplate(t *testing.T) {
	r := New(nil)
	d, err := r.Get("krishna-saarthi-counselor")
	require.NoError(t, err)

	req, err := r.BuildPayload(d, "How to meditate?", models.GenerationOptions{})
	require.NoError(t, err)
	assert.Equal(t, "USER: How to meditate?\nASSISTANT:", req.Inputs)
	assert.Equal(t, d.Parameters.MaxNewTokens, req.Parameters.MaxNewTokens)
	assert.Equal(t, d.Parameters.Temperature, req.Parameters.Temperature)
	assert.False(t, req.Parameters.ReturnFullText)
}

func TestBuildPayloadOptionsTakePrecedence(t *testing.T) {
	r := New(nil)
	d, err := r.Get("general-assistant")
	require.NoError(t, err)

	req, err := r.BuildPayload(d, "hi", models.GenerationOptions{
		MaxNewTokens: models.Int(42),
		DoSample:     models.Bool(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", req.Inputs, "models without a template get the raw message")
	assert.Equal(t, 42, req.Parameters.MaxNewTokens)
	assert.True(t, req.Parameters.DoSample)
	assert.Equal(t, d.Parameters.Temperature, req.Parameters.Temperature)
}

func TestBuildPayloadUnknownDescriptor(t *testing.T) {
	r := New(nil)
	_, err := r.BuildPayload(models.ModelDescriptor{ID: "ghost", Path: "x/y"}, "hi", models.GenerationOptions{})
	assert.True(t, errors.Is(err, ErrUnknownModel))
}
