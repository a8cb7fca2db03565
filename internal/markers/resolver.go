package markers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"go.uber.org/zap"
)

// Reason classifies a marker that could not be resolved.
type Reason string

const (
	// ReasonMissingReference marks a reference to an entity that does not exist.
	ReasonMissingReference Reason = "missing_reference"
	// ReasonForeignPageReference marks a reference to an entity attached to another page.
	ReasonForeignPageReference Reason = "foreign_page_reference"
)

var errMissingLookup = errors.New("markers: attachment lookup is required")

// ResolutionError describes a marker that must render as a placeholder.
type ResolutionError struct {
	Reason   Reason
	Kind     Kind
	EntityID int64
	PageID   int64
	Position int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("markers: %s %s_%d at line %d of page %d", e.Reason, e.Kind, e.EntityID, e.Position, e.PageID)
}

// SegmentType distinguishes plain text lines from resolved or broken markers.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentTable SegmentType = "table"
	SegmentImage SegmentType = "image"
)

// Segment is one line of page content. Marker segments carry either the resolved
// attachment or a ResolutionError, never both.
type Segment struct {
	Position int
	Type     SegmentType
	Text     string
	EntityID int64
	Table    *model.Table
	Image    *model.Image
	Err      *ResolutionError
}

// Resolved reports whether a marker segment points at a usable attachment.
func (s Segment) Resolved() bool {
	return s.Err == nil && (s.Table != nil || s.Image != nil)
}

// Lookup fetches attachments by id. Absent entities yield model.ErrNotFound.
type Lookup interface {
	Table(ctx context.Context, id int64) (model.Table, error)
	Image(ctx context.Context, id int64) (model.Image, error)
}

// Resolver turns page content into ordered segments.
type Resolver struct {
	lookup Lookup
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(lookup Lookup, logger *zap.Logger) (*Resolver, error) {
	if lookup == nil {
		return nil, errMissingLookup
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{lookup: lookup, logger: logger}, nil
}

// Resolve splits content into lines, preserving order, and resolves marker lines
// against the store. Markers whose entity is absent or attached to a different page
// produce a per-position ResolutionError. The returned error is reserved for
// lookup failures other than absence.
func (r *Resolver) Resolve(ctx context.Context, pageID int64, content string) ([]Segment, error) {
	lines := strings.Split(content, lineSeparator)
	segments := make([]Segment, 0, len(lines))
	for position, line := range lines {
		marker, ok := Parse(line)
		if !ok {
			segments = append(segments, Segment{Position: position, Type: SegmentText, Text: line})
			continue
		}
		segment, err := r.resolveMarker(ctx, pageID, position, line, marker)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

func (r *Resolver) resolveMarker(ctx context.Context, pageID int64, position int, line string, marker Marker) (Segment, error) {
	segment := Segment{Position: position, Text: line, EntityID: marker.EntityID}
	switch marker.Kind {
	case KindTable:
		segment.Type = SegmentTable
	case KindImage:
		segment.Type = SegmentImage
	}

	broken := func(reason Reason) Segment {
		segment.Err = &ResolutionError{
			Reason:   reason,
			Kind:     marker.Kind,
			EntityID: marker.EntityID,
			PageID:   pageID,
			Position: position,
		}
		r.logger.Debug("page marker unresolved",
			zap.Int64("page_id", pageID),
			zap.Int("position", position),
			zap.String("marker", line),
			zap.String("reason", string(reason)))
		return segment
	}

	if !marker.Valid {
		return broken(ReasonMissingReference), nil
	}

	var ownerPageID int64
	switch marker.Kind {
	case KindTable:
		table, err := r.lookup.Table(ctx, marker.EntityID)
		if errors.Is(err, model.ErrNotFound) {
			return broken(ReasonMissingReference), nil
		}
		if err != nil {
			return Segment{}, err
		}
		ownerPageID = table.PageID
		segment.Table = &table
	case KindImage:
		image, err := r.lookup.Image(ctx, marker.EntityID)
		if errors.Is(err, model.ErrNotFound) {
			return broken(ReasonMissingReference), nil
		}
		if err != nil {
			return Segment{}, err
		}
		ownerPageID = image.PageID
		segment.Image = &image
	}

	if ownerPageID != pageID {
		segment.Table = nil
		segment.Image = nil
		return broken(ReasonForeignPageReference), nil
	}
	return segment, nil
}
