package fixsource

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/navigation"
)

// minCourseKnots is the ground speed below which an RMC course is noise.
const minCourseKnots = 1.0

// NMEALog is the guidance input recovered from an NMEA 0183 log.
type NMEALog struct {
	Fixes    []navigation.Fix
	Headings []navigation.HeadingSample
	// Skipped counts lines that could not be parsed.
	Skipped int
}

// LoadNMEA reads an NMEA log from path.
func LoadNMEA(ctx context.Context, path string) (*NMEALog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadNMEA(ctx, f)
}

// ReadNMEA extracts fixes and course-over-ground headings from the RMC sentences in r.
// Other sentence types are ignored, as are RMC sentences flagged void.
func ReadNMEA(ctx context.Context, r io.Reader) (*NMEALog, error) {
	ctx = logging.EnsureLogger(ctx)
	out := &NMEALog{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		sentence, err := nmea.Parse(text)
		if err != nil {
			out.Skipped++
			logging.Debugw(ctx, "fixsource: unparseable nmea sentence", "line", line, "error", err)
			continue
		}
		rmc, ok := sentence.(nmea.RMC)
		if !ok {
			continue
		}
		if rmc.Validity != nmea.ValidRMC || !rmc.Date.Valid || !rmc.Time.Valid {
			continue
		}

		at := rmcTime(rmc)
		out.Fixes = append(out.Fixes, navigation.Fix{
			Point: geo.RawPoint{Latitude: rmc.Latitude, Longitude: rmc.Longitude},
			Time:  at,
		})
		out.Headings = append(out.Headings, navigation.HeadingSample{
			Degrees: rmc.Course,
			Valid:   rmc.Speed >= minCourseKnots,
			Time:    at,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// rmcTime assumes two-digit years fall in this century.
func rmcTime(rmc nmea.RMC) time.Time {
	return time.Date(2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
		rmc.Time.Millisecond*int(time.Millisecond), time.UTC)
}
