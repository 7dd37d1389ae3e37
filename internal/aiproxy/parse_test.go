package aiproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{`Sure! {"a":{"b":[1]}} hope it helps`, `{"a":{"b":[1]}}`},
	}
	for _, tc := range cases {
		got, err := extractJSON(tc.in)
		require.NoError(t, err, tc.in)
		assert.JSONEq(t, tc.want, string(got))
	}

	for _, in := range []string{"", "no json here", `{"a":`} {
		_, err := extractJSON(in)
		assert.ErrorIs(t, err, errNoJSON, in)
	}
}

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.NoError(t, v.Validate(SchemaInsights, []byte(`{"summary":"ok","tips":[]}`)))
	assert.ErrorIs(t, v.Validate(SchemaInsights, []byte(`{"summary":""}`)), ErrValidation)
	assert.ErrorIs(t, v.Validate(SchemaFoodAnalysis, []byte(`not json`)), ErrValidation)
	assert.Error(t, v.Validate("missing", []byte(`{}`)))
}
