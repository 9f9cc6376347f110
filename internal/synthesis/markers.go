package synthesis

import (
	"bufio"
	"bytes"
	"strings"
)

// markerPrefixes are the line openers jj and git use inside materialized
// conflicts. Each is followed by a space or the end of the line.
var markerPrefixes = []string{"<<<<<<<", ">>>>>>>", "%%%%%%%", "+++++++", "|||||||"}

// HasConflictMarkers reports whether content contains a line that opens
// or closes a conflict region.
func HasConflictMarkers(content []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		for _, p := range markerPrefixes {
			if line == p || strings.HasPrefix(line, p+" ") {
				return true
			}
		}
	}
	return false
}
