// SPDX-License-Identifier: Apache-2.0

package step_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hwfix-dev/hwfix/internal/cmdexec"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/core/step"
	"github.com/hwfix-dev/hwfix/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandSpec(check bool) models.StepSpec {
	params := map[string]interface{}{
		"apply": map[string]interface{}{
			"command": "dkms",
			"args":    []interface{}{"install", "max98390-hda/1.0"},
		},
		"revert": map[string]interface{}{
			"command": "dkms",
			"args":    []interface{}{"remove", "max98390-hda/1.0", "--all"},
		},
	}
	if check {
		params["check"] = map[string]interface{}{
			"command": "dkms-status",
		}
	}
	return models.StepSpec{ID: "dkms", Type: "command", Params: params}
}

func TestCommandStepApplyAndRevert(t *testing.T) {
	runner := &testutil.ScriptedRunner{}
	factory := newTestFactory(t, step.Environment{Runner: runner})

	st, err := factory.Create(commandSpec(false))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Apply(ctx))
	require.NoError(t, st.Revert(ctx))

	assert.Equal(t, []string{
		"dkms install max98390-hda/1.0",
		"dkms remove max98390-hda/1.0 --all",
	}, runner.Commands())
}

func TestCommandStepCheckGatesIsApplied(t *testing.T) {
	ctx := context.Background()

	t.Run("CheckSucceeds", func(t *testing.T) {
		runner := &testutil.ScriptedRunner{}
		factory := newTestFactory(t, step.Environment{Runner: runner})
		st, err := factory.Create(commandSpec(true))
		require.NoError(t, err)

		applied, err := st.IsApplied(ctx)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("CheckFails", func(t *testing.T) {
		runner := &testutil.ScriptedRunner{
			Script: []testutil.CannedResult{{
				Command: "dkms-status",
				Result:  &cmdexec.Result{ExitStatus: 1},
				Err:     errors.New("exit status 1"),
			}},
		}
		factory := newTestFactory(t, step.Environment{Runner: runner})
		st, err := factory.Create(commandSpec(true))
		require.NoError(t, err)

		applied, err := st.IsApplied(ctx)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("NoCheckMeansNotApplied", func(t *testing.T) {
		factory := newTestFactory(t, step.Environment{Runner: &testutil.ScriptedRunner{}})
		st, err := factory.Create(commandSpec(false))
		require.NoError(t, err)

		applied, err := st.IsApplied(ctx)
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestCommandStepErrorIncludesStderr(t *testing.T) {
	runner := &testutil.ScriptedRunner{
		Script: []testutil.CannedResult{{
			Command: "dkms",
			Result: &cmdexec.Result{
				Stderr:     []byte("Error! Bad return status for module build\n"),
				ExitStatus: 10,
			},
			Err: errors.New("exit status 10"),
		}},
	}
	factory := newTestFactory(t, step.Environment{Runner: runner})

	st, err := factory.Create(commandSpec(false))
	require.NoError(t, err)

	err = st.Apply(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad return status")
}

func TestCommandStepMutatedPaths(t *testing.T) {
	factory := newTestFactory(t, step.Environment{Runner: &testutil.ScriptedRunner{}})

	st, err := factory.Create(models.StepSpec{
		ID:   "blacklist",
		Type: "command",
		Params: map[string]interface{}{
			"apply":   map[string]interface{}{"command": "true"},
			"mutates": []interface{}{"/etc/modprobe.d/blacklist.conf"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/modprobe.d/blacklist.conf"}, st.MutatedPaths())
}
