package loan

import (
	"regexp"
	"strconv"
)

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// RateRange is the numeric interest-rate range parsed from free text.
// Found is false when the text held no percentage figure.
type RateRange struct {
	Min   float64
	Max   float64
	Found bool
}

// MinRate returns a pointer to Min, or nil when nothing was parsed.
func (r RateRange) MinRate() *float64 {
	if !r.Found {
		return nil
	}
	v := r.Min
	return &v
}

// ParseInterestRate extracts the rate range from text such as "10.5% - 24%".
//
// One figure yields Min == Max. With two or more figures Min is the first and Max the second
// in order of appearance, not by numeric comparison; callers needing numeric order must sort.
func ParseInterestRate(text string) RateRange {
	if text == "" {
		return RateRange{}
	}
	matches := percentPattern.FindAllStringSubmatch(text, 2)
	values := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	switch len(values) {
	case 0:
		return RateRange{}
	case 1:
		return RateRange{Min: values[0], Max: values[0], Found: true}
	default:
		return RateRange{Min: values[0], Max: values[1], Found: true}
	}
}
