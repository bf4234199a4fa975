package provider

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		shape Shape
		text  string
		items int
	}{
		{"list", `[{"generated_text":"a"},{"generated_text":"b"}]`, ShapeList, "a", 2},
		{"list skips entries without text", `[{"score":1},{"generated_text":"b"}]`, ShapeList, "b", 2},
		{"object", `{"generated_text":"solo","details":{}}`, ShapeObject, "solo", 1},
		{"empty text is still text", `{"generated_text":""}`, ShapeObject, "", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ParseResult([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.shape, res.Shape)
			assert.Equal(t, tc.text, res.Text)
			assert.Equal(t, tc.items, res.Items)
		})
	}
}

func TestParseResultMalformed(t *testing.T) {
	bodies := []string{
		`not json`,
		`[]`,
		`[{"text":"wrong field"}]`,
		`{"generated_text":42}`,
		`{"error":"Model is currently loading"}`,
		`"just a string"`,
		`null`,
	}
	for _, body := range bodies {
		_, err := ParseResult([]byte(body))
		var pe *Error
		require.True(t, errors.As(err, &pe), "body %q", body)
		assert.Equal(t, KindMalformed, pe.Kind, "body %q", body)
		assert.False(t, pe.Transient())
	}
}
