package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Fatalf("line longer than %d: %q", Wrap, line)
		}
	}
	require.Equal(t, "", WrapString("   "))
}

func TestParsePlugins(t *testing.T) {
	plugins, err := parsePlugins("sample=Sample Plugin, other = Other ,")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"sample": "Sample Plugin", "other": "Other"}, plugins)

	_, err = parsePlugins("broken")
	require.Error(t, err)

	plugins, err = parsePlugins("")
	require.NoError(t, err)
	require.Empty(t, plugins)
}
