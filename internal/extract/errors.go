package extract

import (
	"fmt"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
)

// SchemaError reports a page body that matches neither the v1 array shape nor
// the v2 {"entities": [...]} shape. It is fatal for the entity type being read.
type SchemaError struct {
	Expected APIVersion
	Found    jsonvalue.Kind
	Detail   string
	Err      error
}

func (e *SchemaError) Error() string {
	msg := "payload matches neither the v1 array shape nor the v2 entities object"
	if e.Expected != VersionAuto {
		msg = fmt.Sprintf("payload does not match the %s shape", e.Expected)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// RecordFieldError reports an entity record without a usable entityId. The
// record is skipped and extraction continues with the next one.
type RecordFieldError struct {
	Index  int // position of the record in the concatenated page sequence
	Field  string
	Reason string
}

func (e *RecordFieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %d: field %q %s", e.Index, e.Field, e.Reason)
}

// RelationshipReferenceError reports a relationship reference without a target
// id. Only that edge is skipped.
type RelationshipReferenceError struct {
	EntityID         string
	Direction        string // "toRelationships" or "fromRelationships"
	RelationshipType string
	Index            int
}

func (e *RelationshipReferenceError) Error() string {
	return fmt.Sprintf("entity %s: %s.%s[%d] has no id", e.EntityID, e.Direction, e.RelationshipType, e.Index)
}
