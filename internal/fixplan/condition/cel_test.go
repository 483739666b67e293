// SPDX-License-Identifier: Apache-2.0

package condition_test

import (
	"testing"

	"github.com/hwfix-dev/hwfix/internal/fixplan/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	evaluator, err := condition.NewEvaluator()
	require.NoError(t, err)

	facts := map[string]interface{}{
		"distro_family": "debian",
		"has_camera":    true,
		"has_amp":       false,
		"kernel_version": "6.8.0-45-generic",
	}

	tests := []struct {
		name       string
		expression string
		want       bool
		wantErr    bool
	}{
		{name: "EmptyMatches", expression: "", want: true},
		{name: "BoolFact", expression: "facts.has_camera", want: true},
		{name: "Negation", expression: "!facts.has_amp", want: true},
		{name: "StringComparison", expression: "facts.distro_family == 'debian'", want: true},
		{name: "Disjunction", expression: "facts.has_amp || facts.has_camera", want: true},
		{name: "StringFunction", expression: "facts.kernel_version.startsWith('6.')", want: true},
		{name: "False", expression: "facts.distro_family == 'arch'", want: false},
		{name: "NonBoolean", expression: "facts.distro_family", wantErr: true},
		{name: "ParseError", expression: "facts.has_camera &&", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evaluator.Evaluate(tc.expression, facts)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
