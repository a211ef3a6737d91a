package catalog

import "time"

// DecadeRange resolves a decade filter name to an inclusive year range.
// The "2000s" bucket is open-ended up to the current year. "all" and any
// unrecognized filter mean no filtering, reported by ok=false.
//
// Every decade consumer goes through this table so the windows cannot
// diverge.
func DecadeRange(filter string, now time.Time) (start, end int, ok bool) {
	switch filter {
	case "1960s":
		return 1960, 1969, true
	case "1970s":
		return 1970, 1979, true
	case "1980s":
		return 1980, 1989, true
	case "1990s":
		return 1990, 1999, true
	case "2000s":
		return 2000, now.Year(), true
	default:
		return 0, 0, false
	}
}
