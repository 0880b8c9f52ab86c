package geocode

import (
	"fmt"
	"strconv"
)

// BuildMapURL returns a map link for the coordinate on the given service.
// URLs derive only from the coordinate and the service identifier; no
// free-form text is embedded.
func BuildMapURL(service string, lat, lng float64) string {
	la := strconv.FormatFloat(lat, 'f', -1, 64)
	ln := strconv.FormatFloat(lng, 'f', -1, 64)
	switch service {
	case "osm":
		return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%s&mlon=%s#map=15/%s/%s", la, ln, la, ln)
	case "apple":
		return fmt.Sprintf("https://maps.apple.com/?ll=%s,%s&q=%s,%s", la, ln, la, ln)
	default:
		return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%s,%s", la, ln)
	}
}
