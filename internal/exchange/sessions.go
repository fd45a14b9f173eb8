package exchange

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DayWindow converts a calendar date into the absolute UTC window covered
// by the exchange's allday session. Overnight sessions (end at or before
// start in wall time) roll the start back one day.
func DayWindow(h *Hours, date time.Time) (time.Time, time.Time, error) {
	sess, ok := h.Session("allday")
	if !ok {
		return time.Time{}, time.Time{}, eris.Errorf("exchange: %s has no allday session", h.Exchange)
	}
	loc, err := h.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start, err := atTime(date, sess.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atTime(date, sess.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start.UTC(), end.UTC(), nil
}

// ResolveSession expands a session spec into concrete wall-time bounds.
// Specs are either a plain session name ("day", "am") or a modifier form:
//
//	day_open_30          first 30 minutes of the day session
//	am_close_15          last 15 minutes of the am session
//	day_normal_30_30     day session trimmed by 30 minutes on both ends
//	allday_exact_0930_1000  explicit bounds, ignoring session times
func ResolveSession(h *Hours, spec string) (Session, bool) {
	if spec == "" {
		return Session{}, false
	}
	if s, ok := h.Session(spec); ok {
		return s, true
	}

	parts := strings.Split(spec, "_")
	if len(parts) < 3 {
		return Session{}, false
	}
	base, ok := h.Session(parts[0])
	if parts[1] != "exact" && !ok {
		return Session{}, false
	}

	switch parts[1] {
	case "open":
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return Session{}, false
		}
		return Session{Start: base.Start, End: addMinutes(base.Start, n)}, true
	case "close":
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return Session{}, false
		}
		return Session{Start: addMinutes(base.End, -n), End: base.End}, true
	case "normal":
		if len(parts) != 4 {
			return Session{}, false
		}
		a, err1 := strconv.Atoi(parts[2])
		b, err2 := strconv.Atoi(parts[3])
		if err1 != nil || err2 != nil {
			return Session{}, false
		}
		return Session{Start: addMinutes(base.Start, a), End: addMinutes(base.End, -b)}, true
	case "exact":
		if len(parts) != 4 || len(parts[2]) != 4 || len(parts[3]) != 4 {
			return Session{}, false
		}
		return Session{
			Start: parts[2][:2] + ":" + parts[2][2:],
			End:   parts[3][:2] + ":" + parts[3][2:],
		}, true
	}
	return Session{}, false
}

func atTime(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	hh, mm, err := parseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hh, mm, 0, 0, loc), nil
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("exchange: bad session time %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, eris.Wrapf(err, "exchange: bad session time %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, eris.Wrapf(err, "exchange: bad session time %q", s)
	}
	return hh, mm, nil
}

func addMinutes(hhmm string, n int) string {
	hh, mm, err := parseHHMM(hhmm)
	if err != nil {
		return hhmm
	}
	total := ((hh*60+mm+n)%1440 + 1440) % 1440
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
