// ABOUTME: Day-key computation and IANA timezone validation.
// ABOUTME: Maps an instant to its calendar date (YYYY-MM-DD) in a selected zone.
package zone

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DayKeyLayout is the calendar date format used for day keys.
const DayKeyLayout = "2006-01-02"

// ErrInvalidTimezone is returned for identifiers that are not IANA zone ids.
var ErrInvalidTimezone = errors.New("invalid timezone")

// Common lists the zones offered by the timezone picker.
var Common = []string{
	"Europe/Madrid",
	"America/Mexico_City",
	"America/New_York",
	"America/Bogota",
	"America/Buenos_Aires",
	"UTC",
	"Europe/London",
	"Asia/Tokyo",
	"Asia/Dubai",
	"Australia/Sydney",
}

// Load resolves an IANA zone id. The empty string and "Local" are rejected
// because they do not name a stable zone.
func Load(id string) (*time.Location, error) {
	if id == "" || id == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, id)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, id)
	}
	return loc, nil
}

// Validate reports whether id names a known IANA zone.
func Validate(id string) error {
	_, err := Load(id)
	return err
}

// DayKey returns the calendar date of instant as observed in the zone id.
func DayKey(instant time.Time, id string) (string, error) {
	loc, err := Load(id)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format(DayKeyLayout), nil
}

// ParseDayKey parses a YYYY-MM-DD day key into midnight UTC of that date.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.Parse(DayKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", key, err)
	}
	return t, nil
}

// HostZoneID returns the host's IANA zone id, falling back to UTC.
func HostZoneID() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" && Validate(tz) == nil {
		return tz
	}
	if id := zoneFromLink("/etc/localtime"); id != "" {
		return id
	}
	if name := time.Local.String(); Validate(name) == nil {
		return name
	}
	return "UTC"
}

// zoneFromLink reads a zoneinfo symlink like /usr/share/zoneinfo/Europe/Madrid.
func zoneFromLink(path string) string {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	const marker = "zoneinfo/"
	i := strings.LastIndex(target, marker)
	if i < 0 {
		return ""
	}
	id := target[i+len(marker):]
	if Validate(id) != nil {
		return ""
	}
	return id
}
