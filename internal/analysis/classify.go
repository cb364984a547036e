package analysis

// motorClasses maps total impulse (N·s) to standard motor class letters.
// Ordered by lower bound; each class covers roughly a doubling of impulse.
// Values below the A floor classify as "sub-A"; at or above the I ceiling,
// "J+".
var motorClasses = []struct {
	min   float64
	label string
}{
	{1.26, "A"},
	{2.5, "B"},
	{5, "C"},
	{10, "D"},
	{20, "E"},
	{40, "F"},
	{80, "G"},
	{160, "H"},
	{320, "I"},
	{640, "J+"},
}

// Classify returns the motor class letter for a total impulse in N·s.
// Monotonic: a larger impulse never maps to a lower class.
func Classify(impulse float64) string {
	if impulse < motorClasses[0].min {
		return "sub-A"
	}
	label := motorClasses[0].label
	for _, c := range motorClasses {
		if impulse < c.min {
			break
		}
		label = c.label
	}
	return label
}
