package main

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"table", FormatTable},
		{"JSON", FormatJSON},
		{"yaml", FormatYAML},
	}
	for _, tt := range tests {
		got, err := parseFormat(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := parseFormat("xml")
	assert.True(t, errors.HasCode(err, ErrUnknownFormat))
}

func TestWriteYAMLUsesJSONNames(t *testing.T) {
	info := telemetry.AppInfo{PackageName: "com.example.app", DisplayName: "1234", System: false}

	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, []telemetry.AppInfo{info}))

	assert.Equal(t, "- package_name: com.example.app\n  display_name: \"1234\"\n  system: false\n", buf.String())
}

func TestRenderTableFormatCallsHuman(t *testing.T) {
	var buf bytes.Buffer
	called := false

	require.NoError(t, render(&buf, FormatTable, nil, func() { called = true }))
	assert.True(t, called)

	called = false
	require.NoError(t, render(&buf, FormatJSON, map[string]int{"n": 1}, func() { called = true }))
	assert.False(t, called)
	assert.JSONEq(t, `{"n":1}`, buf.String())
}
