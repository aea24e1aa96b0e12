package timeparse

// OrderDetector resolves the DD/MM vs MM/DD ambiguity from samples.
type OrderDetector struct {
	dayFirst   int
	monthFirst int
}

// Add inspects one sample. Samples that are not slash/dash/dot
// separated numeric dates are ignored.
func (d *OrderDetector) Add(s string) {
	parts := splitDateParts(s)
	if len(parts) < 3 || len(parts[0]) > 2 || len(parts[1]) > 2 {
		return
	}
	first, ok1 := digits(parts[0])
	second, ok2 := digits(parts[1])
	if !ok1 || !ok2 {
		return
	}
	// A field greater than 12 can only be a day.
	if first > 12 && second <= 12 {
		d.dayFirst++
	}
	if second > 12 && first <= 12 {
		d.monthFirst++
	}
}

// Order returns the most likely order, month-first when undecided.
func (d *OrderDetector) Order() Order {
	if d.dayFirst > d.monthFirst {
		return OrderDMY
	}
	return OrderMDY
}

// splitDateParts splits the leading date of s on / - and . separators.
func splitDateParts(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' || c == '-' || c == '.' {
			if start < i {
				parts = append(parts, s[start:i])
			}
			start = i + 1
			continue
		}
		if c < '0' || c > '9' {
			if start < i {
				parts = append(parts, s[start:i])
			}
			return parts
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
