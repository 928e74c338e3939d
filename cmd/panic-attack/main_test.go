package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func TestUsageErrorWrapping(t *testing.T) {
	err := usagef("bad flag %q", "x")
	assert.True(t, isUsageError(err))
	assert.False(t, isUsageError(errors.New("plain")))

	wrapped := fmt.Errorf("context: %w", err)
	assert.True(t, isUsageError(wrapped))
}

func TestParseDurationFlag(t *testing.T) {
	d, err := parseDurationFlag("", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = parseDurationFlag("90s", 0)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = parseDurationFlag("soon", 0)
	assert.Error(t, err)
}

func TestResolveAxes(t *testing.T) {
	axes, err := resolveAxes(nil, []types.AttackAxis{types.AxisMemory})
	require.NoError(t, err)
	assert.Equal(t, []types.AttackAxis{types.AxisMemory}, axes)

	axes, err = resolveAxes(nil, nil)
	require.NoError(t, err)
	assert.Len(t, axes, 6, "no request and no recommendation falls back to all axes")

	axes, err = resolveAxes([]string{"cpu", "time"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.AttackAxis{types.AxisCpu, types.AxisTime}, axes)

	_, err = resolveAxes([]string{"gravity"}, nil)
	require.Error(t, err)
	assert.True(t, isUsageError(err))
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{
		"assail", "attack", "assault", "ambush", "amuck", "abduct",
		"audience", "adjudicate", "analyze", "diff", "sweep", "workspace",
	} {
		assert.True(t, names[want], "command %s should be registered", want)
	}
}
