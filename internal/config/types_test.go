package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"2s"`, string(out))
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "hunter2")

	out, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}
