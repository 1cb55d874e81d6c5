package model

import (
	"fmt"
	"time"
)

// Metadata summarizes a Document. The counts are always derived from the
// document contents.
type Metadata struct {
	SourceFile        string        `json:"source_file"`
	ComponentType     ComponentType `json:"component_type"`
	Timestamp         int64         `json:"timestamp"`
	ComponentCount    int           `json:"component_count"`
	RelationshipCount int           `json:"relationship_count"`

	SkippedRecords       int `json:"skipped_records,omitempty"`
	SkippedRelationships int `json:"skipped_relationships,omitempty"`
}

// Document is the canonical topology produced from one fetch or input file.
type Document struct {
	Metadata      Metadata       `json:"metadata"`
	Components    []Component    `json:"components"`
	Relationships []Relationship `json:"relationships"`
}

// DocumentInfo holds the caller-supplied part of the document metadata.
type DocumentInfo struct {
	SourceFile    string
	ComponentType ComponentType
	Timestamp     time.Time

	SkippedRecords       int
	SkippedRelationships int
}

// DuplicateEntityError is returned when two components share an entity id.
type DuplicateEntityError struct {
	EntityID string
	First    int // index of the first occurrence
	Second   int
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("duplicate entityId %q at components %d and %d", e.EntityID, e.First, e.Second)
}

// Assemble builds a Document. The input slices are copied, so later changes
// by the caller do not leak into the document.
func Assemble(components []*Component, relationships []Relationship, info DocumentInfo) (*Document, error) {
	seen := make(map[string]int, len(components))
	comps := make([]Component, 0, len(components))
	for i, c := range components {
		if first, dup := seen[c.EntityID]; dup {
			return nil, &DuplicateEntityError{EntityID: c.EntityID, First: first, Second: i}
		}
		seen[c.EntityID] = i
		comps = append(comps, *c)
	}

	rels := make([]Relationship, len(relationships))
	copy(rels, relationships)

	return &Document{
		Metadata: Metadata{
			SourceFile:           info.SourceFile,
			ComponentType:        info.ComponentType,
			Timestamp:            info.Timestamp.Unix(),
			ComponentCount:       len(comps),
			RelationshipCount:    len(rels),
			SkippedRecords:       info.SkippedRecords,
			SkippedRelationships: info.SkippedRelationships,
		},
		Components:    comps,
		Relationships: rels,
	}, nil
}
