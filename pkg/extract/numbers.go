package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var digitSequence = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

var smallNumbers = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensNumbers = map[string]float64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var scaleNumbers = map[string]float64{
	"hundred": 100, "thousand": 1000, "million": 1000000,
}

var wordCleaner = regexp.MustCompile(`[^a-z0-9\s/-]`)

// ParseNumber extracts a numeric quantity from free text. It accepts an
// embedded digit sequence ("5", "2.5") or spelled-out numbers: units and
// teens, tens, hundred/thousand/million scales, "point"/"dot" decimals,
// and "half"/"quarter" fractions. The second return is false when the text
// carries no quantity at all; callers must keep that case distinct from 0.
func ParseNumber(text string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, false
	}

	if m := digitSequence.FindString(s); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return v, true
		}
	}

	words := strings.FieldsFunc(wordCleaner.ReplaceAllString(s, " "), func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t' || r == '\n'
	})
	if len(words) == 0 {
		return 0, false
	}

	var total, current float64
	matched := false
	decimalMode := false
	decimalDigits := ""

	for _, w := range words {
		if w == "" || w == "and" {
			continue
		}
		if w == "point" || w == "dot" {
			decimalMode = true
			continue
		}
		if decimalMode {
			if d, ok := decimalDigitFor(w); ok {
				decimalDigits += d
				continue
			}
			break // unknown token ends the decimal part
		}

		if v, ok := smallNumbers[w]; ok {
			current += v
			matched = true
			continue
		}
		if v, ok := tensNumbers[w]; ok {
			current += v
			matched = true
			continue
		}
		if scale, ok := scaleNumbers[w]; ok {
			if current == 0 {
				current = 1
			}
			current *= scale
			matched = true
			if scale >= 1000 {
				total += current
				current = 0
			}
			continue
		}
		if w == "half" {
			current += 0.5
			matched = true
			continue
		}
		if w == "quarter" {
			current += 0.25
			matched = true
			continue
		}
		// unknown word, ignore
	}

	total += current
	if !matched && decimalDigits == "" {
		return 0, false
	}
	if decimalDigits != "" {
		frac, err := strconv.ParseFloat("0."+decimalDigits, 64)
		if err == nil {
			return total + frac, true
		}
	}
	return total, true
}

func decimalDigitFor(w string) (string, bool) {
	if v, ok := smallNumbers[w]; ok && v < 10 {
		return strconv.Itoa(int(v)), true
	}
	if len(w) > 0 && w[0] >= '0' && w[0] <= '9' {
		for _, r := range w {
			if r < '0' || r > '9' {
				return "", false
			}
		}
		return w, true
	}
	return "", false
}
