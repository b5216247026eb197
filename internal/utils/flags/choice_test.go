package flags

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestFormatChoiceUsage(t *testing.T) {
	testCases := []struct {
		name           string
		defaultChoice  string
		choices        []string
		description    string
		expectedOutput string
	}{
		{
			name:           "DefaultFirstChoice",
			defaultChoice:  "local",
			choices:        []string{"local", "user"},
			description:    "Write configuration to LOCAL or user scope.",
			expectedOutput: "`<LOCAL|user>` Write configuration to LOCAL or user scope.",
		},
		{
			name:           "DefaultSecondChoice",
			defaultChoice:  "user",
			choices:        []string{"local", "user"},
			description:    "Persist configuration for the selected scope.",
			expectedOutput: "`<local|USER>` Persist configuration for the selected scope.",
		},
		{
			name:           "EmptyDescription",
			defaultChoice:  "alpha",
			choices:        []string{"alpha", "beta"},
			description:    "",
			expectedOutput: "`<ALPHA|beta>`",
		},
		{
			name:           "DuplicateChoicesIgnored",
			defaultChoice:  "beta",
			choices:        []string{"beta", "beta", "alpha", "alpha"},
			description:    "Select between options.",
			expectedOutput: "`<BETA|alpha>` Select between options.",
		},
		{
			name:           "WhitespaceTrimmed",
			defaultChoice:  "primary",
			choices:        []string{" primary ", " secondary "},
			description:    "Pick a palette.",
			expectedOutput: "`<PRIMARY|secondary>` Pick a palette.",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			actual := FormatChoiceUsage(testCase.defaultChoice, testCase.choices, testCase.description)
			require.Equal(t, testCase.expectedOutput, actual)
		})
	}
}

func TestAddChoiceFlagRestrictsValues(t *testing.T) {
	flagSet := pflag.NewFlagSet("choice", pflag.ContinueOnError)
	var protocol string
	AddChoiceFlag(flagSet, &protocol, "protocol", "http", []string{"http", "ssh"}, "Transport used for clones.")

	require.Equal(t, "http", protocol)
	require.Contains(t, flagSet.Lookup("protocol").Usage, "<HTTP|ssh>")

	require.NoError(t, flagSet.Parse([]string{"--protocol", "SSH"}))
	require.Equal(t, "ssh", protocol)
	require.True(t, flagSet.Changed("protocol"))

	parseError := flagSet.Parse([]string{"--protocol=ftp"})
	require.Error(t, parseError)
	require.Contains(t, parseError.Error(), "expected one of http, ssh")
	require.Equal(t, "ssh", protocol)
}
