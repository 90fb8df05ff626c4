package model

// Flight is one ranked entity returned by the flight search.
//
// Only Ident is mandatory. Everything else is a pointer because the provider
// routinely omits live position data or airport details, and "unknown" has to
// stay distinguishable from zero (a groundspeed of 0 is a real reading).
//
// Altitude is in hundreds of feet (flight level), Groundspeed in knots.
type Flight struct {
	Ident       string  `json:"ident"`
	Altitude    *int    `json:"altitude"`
	Groundspeed *int    `json:"groundspeed"`
	Origin      *string `json:"origin"`
	Destination *string `json:"destination"`
}

// Metric returns the value the flight is ranked by in category c.
func (f Flight) Metric(c Category) *int {
	if c == CategoryGroundspeed {
		return f.Groundspeed
	}
	return f.Altitude
}

// Equal compares every field, treating two nil pointers as equal.
func (f Flight) Equal(o Flight) bool {
	return f.Ident == o.Ident &&
		eqPtr(f.Altitude, o.Altitude) &&
		eqPtr(f.Groundspeed, o.Groundspeed) &&
		eqPtr(f.Origin, o.Origin) &&
		eqPtr(f.Destination, o.Destination)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Ptr returns a pointer to v. Handy for building flights in code and tests.
func Ptr[T any](v T) *T { return &v }
