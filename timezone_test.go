package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimezoneIANAPassthrough(t *testing.T) {
	cases := []string{
		"Europe/Paris",
		"America/New_York",
		"Asia/Tokyo",
		"Australia/Adelaide",
	}
	for _, zone := range cases {
		assert.Equal(t, zone, NormalizeTimezone(zone))
	}
}

func TestNormalizeTimezoneOffsets(t *testing.T) {
	cases := map[string]string{
		"+1":       "Etc/GMT-1",
		"-5":       "Etc/GMT+5",
		"GMT+1:00": "Etc/GMT-1",
		"UTC-06":   "Etc/GMT+6",
		"+0":       "UTC",
		"GMT":      "UTC",
		"+5:30":    "Asia/Kolkata",
		"-3:30":    "America/St_Johns",
		"+5:45":    "Asia/Kathmandu",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeTimezone(input), "input %q", input)
	}
}

func TestNormalizeTimezoneUnknownFractionFallsBack(t *testing.T) {
	// 90 minutes east matches no real zone.
	assert.Equal(t, "UTC", NormalizeTimezone("+1:30"))
}

func TestNormalizeTimezoneAbbreviations(t *testing.T) {
	assert.Equal(t, "America/New_York", NormalizeTimezone("EST"))
	assert.Equal(t, "Europe/Paris", NormalizeTimezone("cet"))
	assert.Equal(t, "Asia/Kolkata", NormalizeTimezone("IST"))
}

func TestNormalizeTimezoneGarbage(t *testing.T) {
	cases := []string{
		"garbage",
		"Not/AZone",
		"+99",
		"GMT+20",
		"",
		"  ",
	}
	for _, input := range cases {
		assert.Equal(t, "UTC", NormalizeTimezone(input), "input %q", input)
	}
}
