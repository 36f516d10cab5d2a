package content

import "time"

const dateLayout = "2006-01-02"

// ActiveOn reports whether the banner should be shown on the calendar day of
// now, in now's location. Both bounds are inclusive. A bound that does not
// parse is ignored.
func (a Announcement) ActiveOn(now time.Time) bool {
	if !a.Enabled || a.Message == "" {
		return false
	}

	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	if a.StartDate != "" {
		if start, err := time.ParseInLocation(dateLayout, a.StartDate, loc); err == nil && today.Before(start) {
			return false
		}
	}
	if a.EndDate != "" {
		if end, err := time.ParseInLocation(dateLayout, a.EndDate, loc); err == nil && today.After(end) {
			return false
		}
	}
	return true
}
