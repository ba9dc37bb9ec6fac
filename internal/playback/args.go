package playback

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Args are the playback parameters parsed from a command tail.
// Volume is a multiplier (1.0 = unchanged), Speed likewise with 0 meaning
// no speed filter, Seek is the start offset.
type Args struct {
	Volume float64
	Speed  float64
	Seek   time.Duration
}

// DefaultArgs plays at full volume, native speed, from the start.
var DefaultArgs = Args{Volume: 1.0}

// RangeError reports a playback parameter outside its allowed range.
type RangeError struct {
	Param string
	Min   int
	Max   int // 0 means unbounded above
}

func (e *RangeError) Error() string {
	if e.Max == 0 {
		return fmt.Sprintf("%s cannot be less than %d%%", e.Param, e.Min)
	}
	return fmt.Sprintf("%s must be between %d%% and %d%%", e.Param, e.Min, e.Max)
}

// ParseError reports an argument token that could not be understood.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse %q", e.Input)
}

// ParseArgs parses whitespace-separated playback tokens: v<percent> for
// volume, s<percent> for speed, t<h:mm:ss> for seek. Each is optional and
// they may appear in any order; the first occurrence of each wins.
func ParseArgs(input string) (Args, error) {
	args := DefaultArgs
	seenVolume, seenSpeed, seenSeek := false, false, false

	for _, tok := range strings.Fields(input) {
		switch {
		case !seenVolume && strings.HasPrefix(tok, "v"):
			pct, err := parsePercent(tok)
			if err != nil {
				return DefaultArgs, &ParseError{Input: tok}
			}
			if pct < 0 {
				return DefaultArgs, &RangeError{Param: "volume", Min: 0}
			}
			args.Volume = float64(pct) / 100
			seenVolume = true

		case !seenSpeed && strings.HasPrefix(tok, "s"):
			pct, err := parsePercent(tok)
			if err != nil {
				return DefaultArgs, &ParseError{Input: tok}
			}
			if pct < 50 || pct > 10000 {
				return DefaultArgs, &RangeError{Param: "speed", Min: 50, Max: 10000}
			}
			args.Speed = float64(pct) / 100
			seenSpeed = true

		case !seenSeek && strings.HasPrefix(tok, "t"):
			seek, err := parseSeek(tok[1:])
			if err != nil {
				return DefaultArgs, &ParseError{Input: tok}
			}
			args.Seek = seek
			seenSeek = true

		default:
			return DefaultArgs, &ParseError{Input: tok}
		}
	}
	return args, nil
}

func parsePercent(tok string) (int, error) {
	return strconv.Atoi(strings.TrimSuffix(tok[1:], "%"))
}

// parseSeek reads [[h:]m:]s with overflow carry, so t90 and t1:30 both
// seek ninety seconds in.
func parseSeek(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 3)
	for len(parts) < 3 {
		parts = append([]string{"0"}, parts...)
	}

	var hms [3]int
	for i, p := range parts {
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad seek component %q", p)
		}
		hms[i] = v
	}

	return time.Duration(hms[0])*time.Hour +
		time.Duration(hms[1])*time.Minute +
		time.Duration(hms[2])*time.Second, nil
}
