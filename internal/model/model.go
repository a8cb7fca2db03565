package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityKind enumerates the entity types reachable through the ownership chain.
type EntityKind string

const (
	// EntityKindNotebook is the root of every ownership chain.
	EntityKindNotebook EntityKind = "notebook"
	// EntityKindPage belongs to exactly one notebook.
	EntityKindPage EntityKind = "page"
	// EntityKindTable holds a ragged grid of text cells attached to a page.
	EntityKindTable EntityKind = "table"
	// EntityKindGraph renders an optional table of the same page.
	EntityKindGraph EntityKind = "graph"
	// EntityKindImage holds a binary attachment of a page.
	EntityKindImage EntityKind = "image"
)

// String returns the lower-case kind label.
func (kind EntityKind) String() string {
	return string(kind)
}

// ParseEntityID validates a decimal identifier supplied by a caller.
func ParseEntityID(kind EntityKind, rawInput string) (int64, error) {
	trimmed := strings.TrimSpace(rawInput)
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewValidationError(fmt.Sprintf("invalid %s id %q", kind, rawInput))
	}
	return id, nil
}

// Notebook is owned by exactly one user, fixed at creation.
type Notebook struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	Title     string    `gorm:"column:title;size:512;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Notebook) TableName() string {
	return "notebooks"
}

// Page belongs to one notebook for its lifetime. Content may embed attachment markers.
type Page struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	NotebookID int64     `gorm:"column:notebook_id;not null;index"`
	Title      string    `gorm:"column:title;size:512;not null"`
	Content    string    `gorm:"column:content;type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Page) TableName() string {
	return "pages"
}

// Table stores its grid as the encoded textual payload produced by tablecodec.
type Table struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PageID    int64     `gorm:"column:page_id;not null;index"`
	Payload   string    `gorm:"column:table_data;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Table) TableName() string {
	return "data_tables"
}

// Graph renders data of an optional table that must live on the same page.
type Graph struct {
	ID        int64       `gorm:"column:id;primaryKey;autoIncrement"`
	PageID    int64       `gorm:"column:page_id;not null;index"`
	Kind      GraphKind   `gorm:"column:kind;size:16;not null"`
	TableID   *int64      `gorm:"column:table_id;index"`
	Config    GraphConfig `gorm:"column:config;type:text;serializer:json"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Graph) TableName() string {
	return "graphs"
}

// Image is read and written whole.
type Image struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PageID      int64     `gorm:"column:page_id;not null;index"`
	Data        []byte    `gorm:"column:image_data;not null"`
	FileName    string    `gorm:"column:file_name;size:512"`
	ContentType string    `gorm:"column:content_type;size:255"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Image) TableName() string {
	return "images"
}
