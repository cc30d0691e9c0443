package golease

import (
	"time"
	_ "time/tzdata" // business timezone must resolve on minimal images
)

// DefaultBusinessTimezone is the timezone that defines "today" for rates.
const DefaultBusinessTimezone = "Europe/Bucharest"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// LoadBusinessLocation loads name, defaulting to DefaultBusinessTimezone.
func LoadBusinessLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultBusinessTimezone
	}
	return time.LoadLocation(name)
}

// todayIn returns the current calendar day in loc.
func todayIn(clock Clock, loc *time.Location) Date {
	return DateOf(clock.Now().In(loc))
}
