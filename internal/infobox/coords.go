package infobox

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/currentevents/internal/extract"
	"github.com/ppiankov/currentevents/internal/model"
	"golang.org/x/net/html"
)

var dmsSplitRe = regexp.MustCompile(`[°′″]`)

// ParseCoordinates reads a span.geo-dms with latitude and longitude children
// such as 36°13′50.3″N. It returns nil when either part is missing or
// malformed.
func ParseCoordinates(geoDMS *html.Node) *model.Coordinates {
	if geoDMS == nil {
		return nil
	}
	var lat, lon *html.Node
	for _, c := range extract.ChildElements(geoDMS) {
		switch {
		case extract.IsElement(c, "span") && extract.HasClass(c, "latitude"):
			lat = c
		case extract.IsElement(c, "span") && extract.HasClass(c, "longitude"):
			lon = c
		}
	}
	if lat == nil || lon == nil {
		return nil
	}
	latDD, ok := DMSToDecimal(extract.Text(lat))
	if !ok {
		return nil
	}
	lonDD, ok := DMSToDecimal(extract.Text(lon))
	if !ok {
		return nil
	}
	return &model.Coordinates{Lat: latDD, Lon: lonDD}
}

// DMSToDecimal converts degrees, optional minutes and seconds plus a compass
// direction into signed decimal degrees.
func DMSToDecimal(dms string) (float64, bool) {
	parts := dmsSplitRe.Split(strings.TrimSpace(dms), -1)
	if len(parts) < 2 || len(parts) > 4 {
		return 0, false
	}
	direction := strings.TrimSpace(parts[len(parts)-1])

	var value float64
	divisor := 1.0
	for _, part := range parts[:len(parts)-1] {
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(part), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		value += f / divisor
		divisor *= 60
	}
	if direction == "W" || direction == "S" {
		value = -value
	}
	return value, true
}
