package publisher

import (
	"fmt"

	"github.com/sakif/highest-aircraft/internal/model"
)

const (
	feetToMeters = 0.3048
	knotsToKmh   = 1.852

	// ViewerURL is the public flight page linked from every announcement.
	ViewerURL = "https://www.flightaware.com/live/flight/"
)

// Format renders the announcement for f as the leader of category.
//
// Altitude arrives as a flight level (hundreds of feet) and is shown in feet
// and meters; groundspeed is shown in knots and km/h. Unknown values are
// printed as N/A (metrics) or Unknown (airports) so every announcement has
// the same lines.
func Format(f model.Flight, category model.Category) string {
	alt := altitudeReadout(f.Altitude)
	spd := groundspeedReadout(f.Groundspeed)
	origin := orUnknown(f.Origin)
	destination := orUnknown(f.Destination)
	link := ViewerURL + f.Ident

	if category == model.CategoryGroundspeed {
		return fmt.Sprintf("Current fastest flight: %s\n"+
			"Groundspeed: %s\n"+
			"Altitude: %s\n"+
			"Origin: %s\n"+
			"Destination: %s\n\n"+
			"More info:\n%s",
			f.Ident, spd, alt, origin, destination, link)
	}

	return fmt.Sprintf("Current highest flight: %s\n"+
		"Altitude: %s\n"+
		"Groundspeed: %s\n"+
		"Origin: %s\n"+
		"Destination: %s\n\n"+
		"More info:\n%s",
		f.Ident, alt, spd, origin, destination, link)
}

// FlightLevelToFeet converts a flight level (hundreds of feet) to feet.
func FlightLevelToFeet(fl int) int { return fl * 100 }

func FeetToMeters(ft int) float64 { return float64(ft) * feetToMeters }

func KnotsToKmh(kts int) float64 { return float64(kts) * knotsToKmh }

func altitudeReadout(fl *int) string {
	if fl == nil {
		return "N/A"
	}
	ft := FlightLevelToFeet(*fl)
	return fmt.Sprintf("%dft (%.2fm)", ft, FeetToMeters(ft))
}

func groundspeedReadout(kts *int) string {
	if kts == nil {
		return "N/A"
	}
	return fmt.Sprintf("%dkts (%.2fkm/h)", *kts, KnotsToKmh(*kts))
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "Unknown"
	}
	return *s
}
