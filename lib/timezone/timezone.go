package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
}

// bank exports carry local German dates with no offset, so all date
// arithmetic has to happen in the portals' timezone regardless of where
// the machine running this happens to be.
func Now() time.Time {
	return time.Now().In(Location)
}

// Midnight truncates t to day precision in the portal timezone.
func Midnight(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}
