// Package serialset expands batch ranges and comma lists into the
// normalized, ordered serial sets that inventory transactions consume.
package serialset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Mode string

const (
	ModeBatch      Mode = "batch"
	ModeIndividual Mode = "individual"
)

var (
	ErrInvalidMode  = errors.New("invalid_serial_mode")
	ErrInvalidRange = errors.New("invalid_serial_range")
	ErrEmptySet     = errors.New("empty_serial_set")
)

type Input struct {
	Mode  Mode
	Start string
	End   string
	List  string
}

// Resolve expands the input into a de-duplicated, ordered serial set.
// Batch bounds must both be numeric unless they are equal, in which case
// the set is the single bound itself. Zero-padding is preserved from the
// wider bound.
func Resolve(in Input) ([]string, error) {
	switch in.Mode {
	case ModeBatch:
		return resolveBatch(strings.TrimSpace(in.Start), strings.TrimSpace(in.End))
	case ModeIndividual:
		serials := Normalize(strings.Split(in.List, ","))
		if len(serials) == 0 {
			return nil, ErrEmptySet
		}
		return serials, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, in.Mode)
	}
}

// Normalize trims tokens, drops empties and de-duplicates while
// preserving first-seen order.
func Normalize(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

func resolveBatch(start, end string) ([]string, error) {
	if start == "" || end == "" {
		return nil, fmt.Errorf("%w: both bounds required", ErrInvalidRange)
	}

	startNum, startOK := parseNumeric(start)
	endNum, endOK := parseNumeric(end)

	if !startOK || !endOK {
		// Non-numeric bounds only make sense as a single-element set.
		if start == end {
			return []string{start}, nil
		}
		return nil, fmt.Errorf("%w: non-numeric bounds %q..%q", ErrInvalidRange, start, end)
	}

	if endNum < startNum {
		return nil, fmt.Errorf("%w: end %q before start %q", ErrInvalidRange, end, start)
	}

	width := len(start)
	if len(end) > width {
		width = len(end)
	}

	serials := make([]string, 0, endNum-startNum+1)
	for n := startNum; n <= endNum; n++ {
		serials = append(serials, fmt.Sprintf("%0*d", width, n))
	}
	return serials, nil
}

func parseNumeric(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
