package tracker

import (
	"fmt"
	"io"

	"github.com/banshee-data/marvelmind/internal/roster"
	"github.com/banshee-data/marvelmind/internal/units"
)

// ConsoleSink prints one line per fresh device with a non-zero quality.
type ConsoleSink struct {
	W    io.Writer
	Unit string // display unit, metres by default
}

func (c ConsoleSink) Consume(devices []roster.Device) error {
	unit := c.Unit
	if unit == "" {
		unit = units.M
	}
	for _, d := range devices {
		if d.Quality() == 0 {
			continue
		}
		_, err := fmt.Fprintf(c.W, "address #%03d x %s y %s z %s q %d\n",
			d.Address(),
			units.Format(d.X(), unit),
			units.Format(d.Y(), unit),
			units.Format(d.Z(), unit),
			d.Quality())
		if err != nil {
			return err
		}
	}
	return nil
}
