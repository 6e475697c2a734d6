package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NormalizesInput(t *testing.T) {
	assert.Equal(t, "amsterdam.west", New("  Amsterdam.West ").Value)
	assert.True(t, New("").IsAll())
	assert.True(t, New("   ").IsAll())
	assert.False(t, New("amsterdam").IsAll())
}

func TestMatches_PrefixIsPathBased(t *testing.T) {
	cases := []struct {
		scope    string
		rowScope string
		want     bool
	}{
		{"", "anything", true},
		{"", "", true},
		{"amsterdam", "amsterdam", true},
		{"amsterdam", "amsterdam.west", true},
		{"amsterdam", "Amsterdam.West", true},
		{"amsterdam.west", "amsterdam", false},
		{"amsterdam", "utrecht", false},
		// Path segments, not string prefixes.
		{"amsterdam.west", "amsterdam.westervoort", false},
		{"ams", "amsterdam", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, New(tc.scope).Matches(tc.rowScope),
			"scope %q against row %q", tc.scope, tc.rowScope)
	}
}
