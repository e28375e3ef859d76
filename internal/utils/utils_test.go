package utils_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"a"}, utils.ToStringSlice("a"))
	require.Equal(t, []string{"a", "b"}, utils.ToStringSlice([]any{"a", 1, "b"}))
	require.Equal(t, []string{"x"}, utils.ToStringSlice([]string{"x"}))
	require.Empty(t, utils.ToStringSlice(42))
}

func TestUnique(t *testing.T) {
	require.Equal(t, []string{"b", "a"}, utils.Unique([]string{"b", "a", "b", "a"}))
}

func TestPtr(t *testing.T) {
	now := time.Now()
	p := utils.Ptr(now)
	require.Equal(t, now, *p)
	*p = now.Add(time.Hour)
	require.NotEqual(t, now, *p)
}
