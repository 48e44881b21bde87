package timezone

import (
	"time"

	"cloud.google.com/go/civil"
)

// ToUTC interprets a wall-clock time in the given coarse zone and returns the
// matching UTC instant. The offset in effect on that calendar date applies.
// A local time inside a daylight-saving gap does not exist; it is read with
// the offset from before the gap, which moves it forward by the gap's length.
func (t *Table) ToUTC(local civil.DateTime, coarse string) (time.Time, error) {
	loc, err := t.Location(coarse)
	if err != nil {
		return time.Time{}, err
	}
	at := local.In(loc)
	if civil.DateTimeOf(at) == local {
		return at.UTC(), nil
	}

	// time.Date picks either side of a gap depending on the zone, so take
	// the offset from well before it explicitly.
	_, before := at.Add(-12 * time.Hour).Zone()
	wall := local.In(time.UTC)
	return wall.Add(-time.Duration(before) * time.Second), nil
}

// ToLocal re-expresses a UTC instant as wall-clock time in the coarse zone.
func (t *Table) ToLocal(instant time.Time, coarse string) (civil.DateTime, error) {
	loc, err := t.Location(coarse)
	if err != nil {
		return civil.DateTime{}, err
	}
	return civil.DateTimeOf(instant.In(loc)), nil
}
