package secret

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("CLAIMCTL_TEST_SECRET", "  hunter2 \n")
	src := NewSource("CLAIMCTL_TEST_SECRET", "admin secret")
	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter2", value)

	t.Setenv("CLAIMCTL_TEST_SECRET", "changed")
	value, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "hunter2", value, "value is cached after the first call")
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("CLAIMCTL_TEST_SECRET", "   ")
	_, err := NewSource("CLAIMCTL_TEST_SECRET", "admin secret").Get()
	require.ErrorContains(t, err, "set but empty")
}
