package extract

import (
	"fmt"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
)

// Options controls how entity records are turned into components.
type Options struct {
	ComponentType model.ComponentType
	Version       APIVersion // version of the page the record came from
}

// Extraction is the result of processing a single entity record.
type Extraction struct {
	Component         *model.Component
	Relationships     []model.Relationship
	SkippedReferences []*RelationshipReferenceError
}

// consumed lists top-level fields that feed the typed component fields and
// are not repeated as attributes.
var consumed = map[string]bool{
	"entityId":          true,
	"displayName":       true,
	"properties":        true,
	"tags":              true,
	"fromRelationships": true,
	"toRelationships":   true,
	"lastSeenTimestamp": true,
}

// Extract builds the component and relationships of one entity record. index
// is the record position used in error messages. A record that is not an
// object or lacks a string entityId yields a *RecordFieldError.
func Extract(record jsonvalue.Value, index int, opts Options) (*Extraction, error) {
	entity, ok := record.(jsonvalue.Object)
	if !ok {
		return nil, &RecordFieldError{
			Index:  index,
			Reason: fmt.Sprintf("record is a %s, not an object", jsonvalue.KindOf(record)),
		}
	}

	rawID, ok := entity.Get("entityId")
	if !ok {
		return nil, &RecordFieldError{Index: index, Field: "entityId", Reason: "is missing"}
	}
	entityID, ok := rawID.(jsonvalue.String)
	if !ok || entityID == "" {
		return nil, &RecordFieldError{Index: index, Field: "entityId", Reason: "is empty or not a string"}
	}

	if opts.ComponentType == model.ComponentProcessGroup && opts.Version == V2 {
		entity = NormalizeProcessGroup(entity)
	}

	id := string(entityID)
	rels, skipped := Relationships(id, entity)

	displayName := firstText(entity, "displayName")
	if displayName == "" {
		displayName = id
	}

	component := &model.Component{
		EntityID:    id,
		DisplayName: displayName,
		Identifiers: []string{model.Identifier(id)},
		Tags:        Tags(entity),
		Type:        opts.ComponentType,
		Attributes:  jsonvalue.Object{},
	}
	if props, ok := entity.GetObject("properties"); ok {
		component.Properties = jsonvalue.CleanObject(AdaptProperties(props))
	}
	for _, m := range entity {
		if consumed[m.Key] {
			continue
		}
		key := m.Key
		if key == "type" {
			// "type" carries the component type in the output document.
			key = "entityType"
		}
		component.Attributes = append(component.Attributes, jsonvalue.Member{Key: key, Value: jsonvalue.Clean(m.Value)})
	}

	return &Extraction{
		Component:         component,
		Relationships:     rels,
		SkippedReferences: skipped,
	}, nil
}
