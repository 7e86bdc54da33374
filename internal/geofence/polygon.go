package geofence

// PointInPolygon reports whether the point lies inside the polygon using
// even-odd ray casting along the longitude axis. Vertices are (lat, lon)
// pairs; the polygon is closed implicitly. Points exactly on the boundary
// may be reported either way.
func PointInPolygon(lat, lon float64, polygon [][2]float64) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	p1Lat, p1Lon := polygon[0][0], polygon[0][1]

	for i := 1; i <= n; i++ {
		p2Lat, p2Lon := polygon[i%n][0], polygon[i%n][1]

		if lon > min(p1Lon, p2Lon) && lon <= max(p1Lon, p2Lon) && lat <= max(p1Lat, p2Lat) {
			var xinters float64
			if p1Lon != p2Lon {
				xinters = (lon-p1Lon)*(p2Lat-p1Lat)/(p2Lon-p1Lon) + p1Lat
			}
			if p1Lat == p2Lat || lat <= xinters {
				inside = !inside
			}
		}

		p1Lat, p1Lon = p2Lat, p2Lon
	}

	return inside
}
