package model

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// GraphKind enumerates supported graph renderings. Stored upper-case.
type GraphKind string

const (
	GraphKindLine GraphKind = "LINE"
	GraphKindBar  GraphKind = "BAR"
	GraphKindPie  GraphKind = "PIE"
)

const maxGraphTitleLength = 200

// ParseGraphKind accepts any letter case and returns the canonical kind.
func ParseGraphKind(rawInput string) (GraphKind, error) {
	switch GraphKind(strings.ToUpper(strings.TrimSpace(rawInput))) {
	case GraphKindLine:
		return GraphKindLine, nil
	case GraphKindBar:
		return GraphKindBar, nil
	case GraphKindPie:
		return GraphKindPie, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown graph type %q", rawInput))
	}
}

// GraphConfig describes how a graph maps table columns. Which fields apply depends on the kind:
// LINE and BAR plot YColumns against XColumn, PIE slices ValueColumn by LabelColumn.
type GraphConfig struct {
	Title       string `json:"title,omitempty"`
	XColumn     int    `json:"x_column"`
	YColumns    []int  `json:"y_columns,omitempty"`
	LabelColumn int    `json:"label_column"`
	ValueColumn int    `json:"value_column"`
	Stacked     bool   `json:"stacked,omitempty"`
	Smooth      bool   `json:"smooth,omitempty"`
}

// ValidateFor checks the configuration against the schema of the graph kind.
func (config GraphConfig) ValidateFor(kind GraphKind) error {
	var err error
	switch kind {
	case GraphKindLine, GraphKindBar:
		err = validation.ValidateStruct(&config,
			validation.Field(&config.Title, validation.Length(0, maxGraphTitleLength)),
			validation.Field(&config.XColumn, validation.Min(0)),
			validation.Field(&config.YColumns, validation.Required, validation.Each(validation.Min(0))),
			validation.Field(&config.LabelColumn, validation.Empty),
			validation.Field(&config.ValueColumn, validation.Empty),
			validation.Field(&config.Stacked, validation.When(kind != GraphKindBar, validation.Empty)),
			validation.Field(&config.Smooth, validation.When(kind != GraphKindLine, validation.Empty)),
		)
	case GraphKindPie:
		err = validation.ValidateStruct(&config,
			validation.Field(&config.Title, validation.Length(0, maxGraphTitleLength)),
			validation.Field(&config.XColumn, validation.Empty),
			validation.Field(&config.YColumns, validation.Empty),
			validation.Field(&config.LabelColumn, validation.Min(0)),
			validation.Field(&config.ValueColumn, validation.Min(0)),
			validation.Field(&config.Stacked, validation.Empty),
			validation.Field(&config.Smooth, validation.Empty),
		)
	default:
		return NewValidationError(fmt.Sprintf("unknown graph type %q", kind))
	}
	if err != nil {
		return WrapValidationError(fmt.Sprintf("invalid %s graph config", kind), err)
	}
	return nil
}
