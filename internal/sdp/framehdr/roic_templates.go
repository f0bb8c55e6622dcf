package framehdr

// DefaultTemplates returns the closed set of named ROIC register-block
// patterns recognized out of the box. Deployments with a different
// instrument revision should build their own table and pass it to
// NewDecoder; these patterns are placeholders for the common imaging
// modes (science acquisition at full and half frame rate, and a
// dark-frame calibration mode) until a real per-instrument register
// mapping is supplied.
func DefaultTemplates() []ROICTemplate {
	return []ROICTemplate{
		{Name: "science_full_frame", Pattern: fillPattern(0x01)},
		{Name: "science_half_frame", Pattern: fillPattern(0x02)},
		{Name: "dark_calibration", Pattern: fillPattern(0xDA)},
	}
}

func fillPattern(b byte) [66]byte {
	var p [66]byte
	for i := range p {
		p[i] = b
	}
	return p
}
