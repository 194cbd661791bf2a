package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitArgs(t *testing.T) {
	allowed := []string{"-c", "--config", "-store"}

	tests := []struct {
		name        string
		args        []string
		wantMatched []string
		wantRest    []string
	}{
		{
			name:        "short flag with separate value",
			args:        []string{"-c", "conf.json", "post", "-topic", "go"},
			wantMatched: []string{"-c", "conf.json"},
			wantRest:    []string{"post", "-topic", "go"},
		},
		{
			name:        "long flag with equals",
			args:        []string{"--config=alt.yaml", "start"},
			wantMatched: []string{"--config=alt.yaml"},
			wantRest:    []string{"start"},
		},
		{
			name:        "unknown equals flag goes to rest",
			args:        []string{"-topic=go", "-store=sqlite"},
			wantMatched: []string{"-store=sqlite"},
			wantRest:    []string{"-topic=go"},
		},
		{
			name:        "flag followed by another flag keeps no value",
			args:        []string{"-c", "-media"},
			wantMatched: []string{"-c"},
			wantRest:    []string{"-media"},
		},
		{
			name:        "empty",
			args:        nil,
			wantMatched: []string{},
			wantRest:    []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			matched, rest := SplitArgs(tc.args, allowed)
			assert.Equal(t, tc.wantMatched, matched)
			assert.Equal(t, tc.wantRest, rest)
		})
	}
}

func TestFilterArgs_DropsRest(t *testing.T) {
	got := FilterArgs([]string{"start", "-store", "file", "-x"}, []string{"-store"})
	assert.Equal(t, []string{"-store", "file"}, got)
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, "a.json", ConfigFile([]string{"start", "-c", "a.json"}))
	assert.Equal(t, "b.yaml", ConfigFile([]string{"-config=b.yaml", "post"}))
	assert.Equal(t, "", ConfigFile([]string{"start", "-topic", "go"}))
}
