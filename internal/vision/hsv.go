package vision

// HSV uses the 8-bit OpenCV convention: hue in [0,180), saturation and
// value in [0,255]
type HSV struct {
	H, S, V uint8
}

// HSVRange is an inclusive lower/upper bound on every channel
type HSVRange struct {
	Lower HSV `yaml:"lower" json:"lower"`
	Upper HSV `yaml:"upper" json:"upper"`
}

// Contains reports whether c falls inside the range on all three channels
func (r HSVRange) Contains(c HSV) bool {
	return c.H >= r.Lower.H && c.H <= r.Upper.H &&
		c.S >= r.Lower.S && c.S <= r.Upper.S &&
		c.V >= r.Lower.V && c.V <= r.Upper.V
}
