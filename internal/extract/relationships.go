package extract

import (
	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
)

// Relationships converts the relationship maps of an entity into edges.
// toRelationships point out of the entity (entityID -> ref.id) and
// fromRelationships point into it (ref.id -> entityID). A reference without an
// id is reported in skipped and does not stop extraction. A single reference
// given in place of a list counts as a one-element list.
func Relationships(entityID string, entity jsonvalue.Object) (rels []model.Relationship, skipped []*RelationshipReferenceError) {
	rels = []model.Relationship{}

	walk := func(direction string, outgoing bool) {
		byType, ok := entity.GetObject(direction)
		if !ok {
			return
		}
		for _, m := range byType {
			var refs jsonvalue.Array
			switch v := m.Value.(type) {
			case jsonvalue.Array:
				refs = v
			case nil, jsonvalue.Null:
				continue
			default:
				refs = jsonvalue.Array{v}
			}
			for i, ref := range refs {
				id := referenceID(ref)
				if id == "" {
					skipped = append(skipped, &RelationshipReferenceError{
						EntityID:         entityID,
						Direction:        direction,
						RelationshipType: m.Key,
						Index:            i,
					})
					continue
				}
				if outgoing {
					rels = append(rels, model.Relationship{Source: entityID, Target: id, Type: m.Key})
				} else {
					rels = append(rels, model.Relationship{Source: id, Target: entityID, Type: m.Key})
				}
			}
		}
	}

	walk("toRelationships", true)
	walk("fromRelationships", false)
	return rels, skipped
}

// referenceID accepts both {"id": "..."} objects and bare id strings.
func referenceID(ref jsonvalue.Value) string {
	switch t := ref.(type) {
	case jsonvalue.Object:
		return firstText(t, "id")
	case jsonvalue.String:
		return string(t)
	default:
		return ""
	}
}
