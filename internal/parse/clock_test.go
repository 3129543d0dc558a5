package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  int
		expectErr bool
	}{
		{name: "24h", raw: "20:00", expected: 20 * 60},
		{name: "24h single digit hour", raw: "8:05", expected: 8*60 + 5},
		{name: "Midnight as zero", raw: "0:00", expected: 0},
		{name: "Midnight as 24:00", raw: "24:00", expected: 0},
		{name: "12h PM", raw: "8 PM", expected: 20 * 60},
		{name: "12h lower case with minutes", raw: "8:30am", expected: 8*60 + 30},
		{name: "12h dotted", raw: "9 p.m.", expected: 21 * 60},
		{name: "12 AM is midnight", raw: "12 AM", expected: 0},
		{name: "12 PM is noon", raw: "12 PM", expected: 12 * 60},
		{name: "Extra spaces", raw: "  7   AM ", expected: 7 * 60},
		{name: "Noon word", raw: "Noon", expected: 12 * 60},
		{name: "Midnight word", raw: "midnight", expected: 0},
		{name: "Empty", raw: "", expectErr: true},
		{name: "Hour out of range", raw: "25:00", expectErr: true},
		{name: "12h hour out of range", raw: "13 PM", expectErr: true},
		{name: "Garbage", raw: "closed", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseClock(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseHourLabel(t *testing.T) {
	h, err := ParseHourLabel("6 AM")
	assert.NoError(t, err)
	assert.Equal(t, 6, h)

	h, err = ParseHourLabel("11 PM")
	assert.NoError(t, err)
	assert.Equal(t, 23, h)

	_, err = ParseHourLabel("")
	assert.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "20:05", FormatClock(20*60+5))
	assert.Equal(t, "01:00", FormatClock(MinutesPerDay+60))
}
