// Package tablecodec converts ragged string grids to and from the bracketed,
// double-quoted text stored as a table payload. The grammar is scanned by hand:
//
//	grid = "[" [ row *("," row) ] "]"
//	row  = "[" [ cell *("," cell) ] "]"
//	cell = '"' *( escaped-char / normal-char ) '"'
//
// Decoding never fails outright. Malformed payloads fall back to DefaultGrid and
// the cause is reported through Result.Recovered.
package tablecodec

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	quote          = '"'
	backslash      = '\\'
	openBracket    = '['
	closeBracket   = ']'
	separator      = ','
	escapedQuote   = `\"`
	unescapedQuote = `"`
)

// ErrMalformedPayload matches every CodecError.
var ErrMalformedPayload = errors.New("tablecodec: malformed payload")

// CodecError describes why a payload could not be decoded.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string {
	return "tablecodec: " + e.Reason
}

// Is reports whether the target is ErrMalformedPayload.
func (e *CodecError) Is(target error) bool {
	return target == ErrMalformedPayload
}

func malformed(format string, args ...any) error {
	return &CodecError{Reason: fmt.Sprintf(format, args...)}
}

// Result carries a decoded grid together with the error that forced a fallback, if any.
type Result struct {
	Grid      [][]string
	Recovered error
}

// Clean reports whether the payload decoded without falling back.
func (r Result) Clean() bool {
	return r.Recovered == nil
}

// DefaultGrid returns a fresh 1x1 grid holding one empty cell.
func DefaultGrid() [][]string {
	return [][]string{{""}}
}

// Codec encodes and decodes table payloads and logs recovered failures.
type Codec struct {
	logger *zap.Logger
}

// NewCodec constructs a Codec. A nil logger discards output.
func NewCodec(logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{logger: logger}
}

// Encode renders the grid. A nil grid encodes as DefaultGrid.
func (c *Codec) Encode(grid [][]string) string {
	return Encode(grid)
}

// Decode parses the payload, logging at warn level when it falls back to DefaultGrid.
func (c *Codec) Decode(payload string) Result {
	result := Decode(payload)
	if result.Recovered != nil {
		logger := c.logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Warn("table payload decode recovered",
			zap.Int("payload_length", len(payload)),
			zap.Error(result.Recovered))
	}
	return result
}

// Encode renders the grid as `[["a","b"],["c"]]`, escaping quotes inside cells.
func Encode(grid [][]string) string {
	if grid == nil {
		grid = DefaultGrid()
	}
	var builder strings.Builder
	builder.WriteByte(openBracket)
	for rowIndex, row := range grid {
		if rowIndex > 0 {
			builder.WriteByte(separator)
		}
		builder.WriteByte(openBracket)
		for cellIndex, cell := range row {
			if cellIndex > 0 {
				builder.WriteByte(separator)
			}
			builder.WriteByte(quote)
			builder.WriteString(strings.ReplaceAll(cell, unescapedQuote, escapedQuote))
			builder.WriteByte(quote)
		}
		builder.WriteByte(closeBracket)
	}
	builder.WriteByte(closeBracket)
	return builder.String()
}

// Decode parses a payload produced by Encode. Empty input yields DefaultGrid with no error.
func Decode(payload string) Result {
	grid, err := decodeGrid(payload)
	if err != nil {
		return Result{Grid: DefaultGrid(), Recovered: err}
	}
	return Result{Grid: grid}
}

func decodeGrid(payload string) ([][]string, error) {
	text := strings.TrimSpace(payload)
	if text == "" {
		return DefaultGrid(), nil
	}

	// Payloads that went through an intermediate string column arrive quoted once more.
	if len(text) >= 2 && text[0] == quote && text[len(text)-1] == quote {
		text = strings.ReplaceAll(text[1:len(text)-1], escapedQuote, unescapedQuote)
	}

	body, ok := stripBrackets(text)
	if !ok {
		return nil, malformed("payload is not a bracketed grid")
	}

	rowTexts, err := splitTopLevel(body)
	if err != nil {
		return nil, err
	}
	grid := make([][]string, 0, len(rowTexts))
	for rowIndex, rowText := range rowTexts {
		row, err := decodeRow(rowText)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowIndex, err)
		}
		grid = append(grid, row)
	}
	return grid, nil
}

func decodeRow(rowText string) ([]string, error) {
	body, ok := stripBrackets(strings.TrimSpace(rowText))
	if !ok {
		return nil, malformed("row %q is not bracketed", rowText)
	}
	cellTexts, err := splitTopLevel(body)
	if err != nil {
		return nil, err
	}
	row := make([]string, 0, len(cellTexts))
	for _, cellText := range cellTexts {
		row = append(row, decodeCell(cellText))
	}
	return row, nil
}

func decodeCell(cellText string) string {
	cell := strings.TrimSpace(cellText)
	if len(cell) >= 2 && cell[0] == quote && cell[len(cell)-1] == quote {
		cell = cell[1 : len(cell)-1]
	}
	return strings.ReplaceAll(cell, escapedQuote, unescapedQuote)
}

func stripBrackets(text string) (string, bool) {
	if len(text) < 2 || text[0] != openBracket || text[len(text)-1] != closeBracket {
		return "", false
	}
	return text[1 : len(text)-1], true
}

// splitTopLevel splits on commas that sit outside quotes and outside nested brackets.
// A quote preceded by a backslash does not toggle the quoted state.
func splitTopLevel(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var parts []string
	depth := 0
	inQuotes := false
	start := 0
	for index := 0; index < len(text); index++ {
		char := text[index]
		switch {
		case char == quote && (index == 0 || text[index-1] != backslash):
			inQuotes = !inQuotes
		case inQuotes:
		case char == openBracket:
			depth++
		case char == closeBracket:
			depth--
			if depth < 0 {
				return nil, malformed("unbalanced closing bracket at offset %d", index)
			}
		case char == separator && depth == 0:
			parts = append(parts, text[start:index])
			start = index + 1
		}
	}
	if inQuotes {
		return nil, malformed("unterminated quoted cell")
	}
	if depth != 0 {
		return nil, malformed("unbalanced brackets")
	}
	return append(parts, text[start:]), nil
}
