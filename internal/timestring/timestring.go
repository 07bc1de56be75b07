// Package timestring compiles strftime-style date templates such as
// "%Y.%m.%d" into matchers that extract a timestamp from an index or
// snapshot name, and formats timestamps back into names.
package timestring

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoMatch     = errors.New("name does not contain the timestring")
	ErrInvalidDate = errors.New("timestring matched an invalid date")
)

type token struct {
	pattern string
	width   int
}

var tokens = map[byte]token{
	'Y': {`\d{4}`, 4},
	'G': {`\d{4}`, 4},
	'y': {`\d{2}`, 2},
	'm': {`\d{2}`, 2},
	'd': {`\d{2}`, 2},
	'H': {`\d{2}`, 2},
	'M': {`\d{2}`, 2},
	'S': {`\d{2}`, 2},
	'j': {`\d{3}`, 3},
	'W': {`\d{2}`, 2},
	'U': {`\d{2}`, 2},
	'V': {`\d{2}`, 2},
}

type Template struct {
	raw    string
	re     *regexp.Regexp
	fields []byte
}

func Compile(raw string) (*Template, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty timestring")
	}

	var b strings.Builder
	var fields []byte
	seen := make(map[byte]bool)

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '%' {
			b.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		if i+1 >= len(raw) {
			return nil, fmt.Errorf("timestring %q: dangling %%", raw)
		}
		i++
		c = raw[i]
		if c == '%' {
			b.WriteString("%")
			continue
		}
		tok, ok := tokens[c]
		if !ok {
			return nil, fmt.Errorf("timestring %q: unsupported directive %%%c", raw, c)
		}
		if seen[c] {
			return nil, fmt.Errorf("timestring %q: directive %%%c repeated", raw, c)
		}
		seen[c] = true
		fields = append(fields, c)
		b.WriteString("(" + tok.pattern + ")")
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("timestring %q: no date directives", raw)
	}
	if seen['Y'] && (seen['y'] || seen['G']) || seen['y'] && seen['G'] {
		return nil, fmt.Errorf("timestring %q: more than one year directive", raw)
	}
	if seen['V'] && !seen['G'] {
		return nil, fmt.Errorf("timestring %q: %%V requires %%G", raw)
	}
	if !seen['Y'] && !seen['y'] && !seen['G'] {
		return nil, fmt.Errorf("timestring %q: missing year directive", raw)
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("timestring %q: %w", raw, err)
	}

	return &Template{raw: raw, re: re, fields: fields}, nil
}

func MustCompile(raw string) *Template {
	t, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) String() string {
	return t.raw
}

// Regexp returns the expression used to locate the timestring inside a name.
func (t *Template) Regexp() *regexp.Regexp {
	return t.re
}

// Match reports whether name contains a substring that parses to a valid date.
func (t *Template) Match(name string) bool {
	_, err := t.Parse(name)
	return err == nil
}

// Parse finds the leftmost occurrence of the template in name and returns
// the UTC instant it encodes. Missing fields default to the start of the
// enclosing period.
func (t *Template) Parse(name string) (time.Time, error) {
	m := t.re.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("%q: %w", name, ErrNoMatch)
	}

	v := make(map[byte]int, len(t.fields))
	for i, f := range t.fields {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%q: %w", name, ErrInvalidDate)
		}
		v[f] = n
	}

	ts, err := build(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w: %v", name, ErrInvalidDate, err)
	}
	return ts, nil
}

func build(v map[byte]int) (time.Time, error) {
	year, ok := v['Y']
	if !ok {
		if y, ok := v['y']; ok {
			year = 2000 + y
		}
	}
	if g, ok := v['G']; ok {
		year = g
	}

	hour, minute, second := v['H'], v['M'], v['S']
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("time of day out of range")
	}
	clock := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second

	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	switch {
	case hasField(v, 'V'):
		week := v['V']
		if week < 1 || week > 53 {
			return time.Time{}, fmt.Errorf("iso week %d out of range", week)
		}
		// ISO week 1 is the week holding January 4th.
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
		monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
		return monday.AddDate(0, 0, (week-1)*7).Add(clock), nil
	case hasField(v, 'j'):
		day := v['j']
		if day < 1 || day > daysIn(year) {
			return time.Time{}, fmt.Errorf("day of year %d out of range", day)
		}
		return jan1.AddDate(0, 0, day-1).Add(clock), nil
	case hasField(v, 'W'), hasField(v, 'U'):
		week, start := v['W'], time.Monday
		if hasField(v, 'U') {
			week, start = v['U'], time.Sunday
		}
		if week > 53 {
			return time.Time{}, fmt.Errorf("week %d out of range", week)
		}
		if week == 0 {
			return jan1.Add(clock), nil
		}
		first := jan1.AddDate(0, 0, (int(start)-int(jan1.Weekday())+7)%7)
		return first.AddDate(0, 0, (week-1)*7).Add(clock), nil
	}

	month, day := 1, 1
	if m, ok := v['m']; ok {
		month = m
	}
	if d, ok := v['d']; ok {
		day = d
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month %d out of range", month)
	}
	ts := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if ts.Month() != time.Month(month) || ts.Day() != day {
		return time.Time{}, fmt.Errorf("day %d out of range for month %d", day, month)
	}
	return ts.Add(clock), nil
}

func hasField(v map[byte]int, f byte) bool {
	_, ok := v[f]
	return ok
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// Format renders t with the template, leaving non-directive text as is.
func (t *Template) Format(ts time.Time) string {
	return Format(t.raw, ts)
}

// Format expands the directives of raw for ts. Unknown directives are kept
// verbatim so names like "curator-%Y%m%d" can be rendered without compiling.
func Format(raw string, ts time.Time) string {
	ts = ts.UTC()
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '%' || i+1 >= len(raw) {
			b.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", ts.Year())
		case 'y':
			fmt.Fprintf(&b, "%02d", ts.Year()%100)
		case 'm':
			fmt.Fprintf(&b, "%02d", int(ts.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", ts.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", ts.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", ts.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", ts.Second())
		case 'j':
			fmt.Fprintf(&b, "%03d", ts.YearDay())
		case 'G':
			y, _ := ts.ISOWeek()
			fmt.Fprintf(&b, "%04d", y)
		case 'V':
			_, w := ts.ISOWeek()
			fmt.Fprintf(&b, "%02d", w)
		case 'W':
			fmt.Fprintf(&b, "%02d", weekNumber(ts, time.Monday))
		case 'U':
			fmt.Fprintf(&b, "%02d", weekNumber(ts, time.Sunday))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

// weekNumber counts weeks starting on start; days before the first such
// weekday of the year fall in week 0.
func weekNumber(ts time.Time, start time.Weekday) int {
	offset := (int(ts.Weekday()) - int(start) + 7) % 7
	return (ts.YearDay() + 6 - offset) / 7
}
