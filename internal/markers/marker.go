// Package markers resolves the inline attachment markers embedded in page content.
//
// A marker occupies a whole line and has one of the forms
//
//	[TABLE_<decimal-id>]
//	[IMAGE_<decimal-id>]
//
// with no other characters on that line.
package markers

import (
	"regexp"
	"strconv"
)

// Kind identifies the attachment a marker points at.
type Kind string

const (
	KindTable Kind = "TABLE"
	KindImage Kind = "IMAGE"
)

const lineSeparator = "\n"

var markerPattern = regexp.MustCompile(`^\[(TABLE|IMAGE)_([0-9]+)\]$`)

// Marker is a parsed marker line. Valid is false when the digits do not fit an entity id.
type Marker struct {
	Kind     Kind
	EntityID int64
	Valid    bool
}

// Parse reports whether the line is exactly one marker.
func Parse(line string) (Marker, bool) {
	match := markerPattern.FindStringSubmatch(line)
	if match == nil {
		return Marker{}, false
	}
	marker := Marker{Kind: Kind(match[1])}
	id, err := strconv.ParseInt(match[2], 10, 64)
	if err == nil && id > 0 {
		marker.EntityID = id
		marker.Valid = true
	}
	return marker, true
}

// Format renders the marker line for an attachment, without a line break.
func Format(kind Kind, entityID int64) string {
	return "[" + string(kind) + "_" + strconv.FormatInt(entityID, 10) + "]"
}

// TableMarker renders the marker for a table.
func TableMarker(tableID int64) string {
	return Format(KindTable, tableID)
}

// ImageMarker renders the marker for an image.
func ImageMarker(imageID int64) string {
	return Format(KindImage, imageID)
}
