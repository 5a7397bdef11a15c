package social

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Providers report timezones in whatever shape they please: IANA names,
// bare GMT offsets, or legacy abbreviations. NormalizeTimezone folds all of
// them into an IANA zone name, with "UTC" as the fallback for anything that
// cannot be resolved.

var tzAbbreviations = map[string]string{
	"UTC":  "UTC",
	"GMT":  "UTC",
	"EST":  "America/New_York",
	"EDT":  "America/New_York",
	"CST":  "America/Chicago",
	"CDT":  "America/Chicago",
	"MST":  "America/Denver",
	"MDT":  "America/Denver",
	"PST":  "America/Los_Angeles",
	"PDT":  "America/Los_Angeles",
	"AKST": "America/Anchorage",
	"HST":  "Pacific/Honolulu",
	"NST":  "America/St_Johns",
	"WET":  "Europe/Lisbon",
	"BST":  "Europe/London",
	"CET":  "Europe/Paris",
	"CEST": "Europe/Paris",
	"EET":  "Europe/Helsinki",
	"EEST": "Europe/Helsinki",
	"IST":  "Asia/Kolkata",
	"JST":  "Asia/Tokyo",
	"KST":  "Asia/Seoul",
	"AEST": "Australia/Sydney",
	"AEDT": "Australia/Sydney",
	"NZST": "Pacific/Auckland",
}

// Fractional offsets have no Etc/GMT zone; map the real-world ones to a
// representative IANA zone. Offsets are minutes east of UTC.
var fractionalOffsetZones = map[int]string{
	-570: "Pacific/Marquesas",
	-210: "America/St_Johns",
	210:  "Asia/Tehran",
	270:  "Asia/Kabul",
	330:  "Asia/Kolkata",
	345:  "Asia/Kathmandu",
	390:  "Asia/Yangon",
	570:  "Australia/Adelaide",
	630:  "Australia/Lord_Howe",
	765:  "Pacific/Chatham",
}

// NormalizeTimezone resolves a provider-supplied timezone value to an IANA
// name. IANA names pass through untouched when loadable; offsets like "+1",
// "GMT+1:00", "-05:30" resolve to a zone with that UTC offset; known
// abbreviations resolve to a representative zone. Everything else is "UTC".
func NormalizeTimezone(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "UTC"
	}

	if strings.Contains(value, "/") {
		if _, err := time.LoadLocation(value); err == nil {
			return value
		}
		return "UTC"
	}

	upper := strings.ToUpper(value)
	if zone, ok := tzAbbreviations[upper]; ok {
		return zone
	}

	if minutes, ok := parseUTCOffset(upper); ok {
		return zoneForOffset(minutes)
	}

	return "UTC"
}

// parseUTCOffset understands "+1", "-5", "+01:30", "GMT+1:00", "UTC-06".
// Returns minutes east of UTC.
func parseUTCOffset(value string) (int, bool) {
	value = strings.TrimPrefix(value, "GMT")
	value = strings.TrimPrefix(value, "UTC")
	if value == "" {
		return 0, true
	}

	sign := 1
	switch value[0] {
	case '+':
		value = value[1:]
	case '-':
		sign = -1
		value = value[1:]
	default:
		return 0, false
	}

	hoursPart := value
	minutesPart := "0"
	if idx := strings.IndexByte(value, ':'); idx >= 0 {
		hoursPart = value[:idx]
		minutesPart = value[idx+1:]
	}

	hours, err := strconv.Atoi(hoursPart)
	if err != nil || hours > 14 {
		return 0, false
	}
	minutes, err := strconv.Atoi(minutesPart)
	if err != nil || minutes > 59 {
		return 0, false
	}

	return sign * (hours*60 + minutes), true
}

func zoneForOffset(minutes int) string {
	if minutes == 0 {
		return "UTC"
	}

	if minutes%60 == 0 {
		hours := minutes / 60
		if hours < -12 || hours > 14 {
			return "UTC"
		}
		// Etc/GMT zone names invert the sign: Etc/GMT-2 is UTC+2.
		name := fmt.Sprintf("Etc/GMT%+d", -hours)
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
		return "UTC"
	}

	if zone, ok := fractionalOffsetZones[minutes]; ok {
		if _, err := time.LoadLocation(zone); err == nil {
			return zone
		}
	}

	return "UTC"
}
