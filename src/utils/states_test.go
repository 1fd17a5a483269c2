package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStateCode(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{"27", "MH"},
		{"7", "DL"},
		{"mh", "MH"},
		{" Maharashtra ", "MH"},
		{"tamil  nadu", "TN"},
		{"Jammu & Kashmir", "JK"},
		{"OR", "OD"},
		{"TG", "TS"},
		{"", ""},
		{"99", "99"},
		{"atlantis", "ATLANTIS"},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeStateCode(tc.raw))
		})
	}
}

func TestIsKnownState(t *testing.T) {
	assert.True(t, IsKnownState("KA"))
	assert.True(t, IsKnownState("29"))
	assert.True(t, IsKnownState("Karnataka"))
	assert.False(t, IsKnownState("99"))
	assert.False(t, IsKnownState(""))
}

func TestStateCodeFromGSTIN(t *testing.T) {
	assert.Equal(t, "MH", StateCodeFromGSTIN("27AAPFU0939F1ZV"))
	assert.Equal(t, "KA", StateCodeFromGSTIN("29AAACI1681G1ZK"))
	assert.Equal(t, "", StateCodeFromGSTIN("99AAPFU0939F1ZV"))
	assert.Equal(t, "", StateCodeFromGSTIN("2"))
}
