package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nongbuhae/cropdoc/internal/conf"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		in    string
		key   string
		value any
	}{
		{"confidence=0.95", "confidence", 0.95},
		{"verified=true", "verified", true},
		{" crop = tomato ", "crop", "tomato"},
		{"note=a=b", "note", "a=b"},
	}
	for _, tt := range tests {
		key, value, err := ParseMetadata(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.key, key)
		assert.Equal(t, tt.value, value)
	}

	for _, bad := range []string{"novalue", "=x"} {
		_, _, err := ParseMetadata(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommand_Errors(t *testing.T) {
	run := func(args ...string) error {
		cmd := Command(&conf.Settings{})
		cmd.SetArgs(args)
		cmd.SetOut(new(strings.Builder))
		cmd.SetErr(new(strings.Builder))
		return cmd.Execute()
	}

	err := run("--type=detection")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid type")

	err = run("--metadata=broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metadata")

	err = run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notification provider")
}
