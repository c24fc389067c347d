package packet

import (
	"fmt"
	"time"
)

// SystemTime is the Win32 SYSTEMTIME layout the server uses for dates.
type SystemTime struct {
	Year         uint16
	Month        uint16
	DayOfWeek    uint16 // 0 = Sunday
	Day          uint16
	Hour         uint16
	Minute       uint16
	Second       uint16
	Milliseconds uint16
}

func NewSystemTime(t time.Time) SystemTime {
	return SystemTime{
		Year:         uint16(t.Year()),
		Month:        uint16(t.Month()),
		DayOfWeek:    uint16(t.Weekday()),
		Day:          uint16(t.Day()),
		Hour:         uint16(t.Hour()),
		Minute:       uint16(t.Minute()),
		Second:       uint16(t.Second()),
		Milliseconds: uint16(t.Nanosecond() / int(time.Millisecond)),
	}
}

// Time converts st to a time.Time in loc. The zero SystemTime maps to the
// zero time.Time.
func (st SystemTime) Time(loc *time.Location) time.Time {
	if st == (SystemTime{}) {
		return time.Time{}
	}
	return time.Date(int(st.Year), time.Month(st.Month), int(st.Day),
		int(st.Hour), int(st.Minute), int(st.Second),
		int(st.Milliseconds)*int(time.Millisecond), loc)
}

func (st SystemTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		st.Year, st.Month, st.Day, st.Hour, st.Minute, st.Second, st.Milliseconds)
}
