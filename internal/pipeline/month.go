package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is one calendar month to parse.
type Month struct {
	Year  int
	Month time.Month
}

// String formats the month as m/yyyy
func (m Month) String() string {
	return fmt.Sprintf("%d/%d", int(m.Month), m.Year)
}

// ParseMonth parses an m/yyyy month such as "1/2022"
func ParseMonth(s string) (Month, error) {
	ms, ys, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Month{}, fmt.Errorf("invalid month %q: want m/yyyy", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 1 || m > 12 {
		return Month{}, fmt.Errorf("invalid month %q: month must be 1-12", s)
	}
	y, err := strconv.Atoi(ys)
	if err != nil || len(ys) != 4 {
		return Month{}, fmt.Errorf("invalid month %q: want a four digit year", s)
	}
	return Month{Year: y, Month: time.Month(m)}, nil
}

// MonthRange returns the months from start to end inclusive, both m/yyyy.
// An empty end means start alone.
func MonthRange(start, end string) ([]Month, error) {
	first, err := ParseMonth(start)
	if err != nil {
		return nil, err
	}
	last := first
	if end != "" {
		if last, err = ParseMonth(end); err != nil {
			return nil, err
		}
	}
	if last.index() < first.index() {
		return nil, fmt.Errorf("end month %s is before start month %s", last, first)
	}

	months := make([]Month, 0, last.index()-first.index()+1)
	for i := first.index(); i <= last.index(); i++ {
		months = append(months, Month{Year: i / 12, Month: time.Month(i%12 + 1)})
	}
	return months, nil
}

func (m Month) index() int {
	return m.Year*12 + int(m.Month) - 1
}
