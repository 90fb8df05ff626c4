// Package model defines the data structures used throughout the bot.
package model

import (
	"fmt"
	"strings"
)

// Category is a ranking dimension. Leaders, sessions and announcements are
// partitioned by category: the altitude bot and the groundspeed bot never
// share rows or credentials.
type Category string

const (
	CategoryAltitude    Category = "ALTITUDE"
	CategoryGroundspeed Category = "GROUNDSPEED"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryAltitude, CategoryGroundspeed}
}

// ParseCategory accepts the canonical names plus the short forms used on
// the command line ("alt", "gspd", "speed").
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALTITUDE", "ALT":
		return CategoryAltitude, nil
	case "GROUNDSPEED", "GSPD", "SPEED":
		return CategoryGroundspeed, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

func (c Category) Valid() bool {
	return c == CategoryAltitude || c == CategoryGroundspeed
}

func (c Category) String() string { return string(c) }
