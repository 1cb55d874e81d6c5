// Package model defines the canonical topology data structures produced by
// the normalization pipeline.
package model

import (
	"fmt"
	"strings"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
)

// URNPrefix is prepended to an entity id to form its canonical identifier.
const URNPrefix = "urn:dynatrace:/"

// ComponentType is the caller-facing name of an entity kind.
type ComponentType string

const (
	ComponentProcess      ComponentType = "process"
	ComponentProcessGroup ComponentType = "process-group"
	ComponentHost         ComponentType = "host"
)

var entityKinds = map[ComponentType]string{
	ComponentProcess:      "PROCESS_GROUP_INSTANCE",
	ComponentProcessGroup: "PROCESS_GROUP",
	ComponentHost:         "HOST",
}

// ComponentTypes returns every supported component type in a stable order.
func ComponentTypes() []ComponentType {
	return []ComponentType{ComponentProcess, ComponentProcessGroup, ComponentHost}
}

// ParseComponentType validates a component type name.
func ParseComponentType(s string) (ComponentType, error) {
	t := ComponentType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := entityKinds[t]; !ok {
		names := make([]string, 0, len(entityKinds))
		for _, ct := range ComponentTypes() {
			names = append(names, string(ct))
		}
		return "", fmt.Errorf("unsupported component type %q (supported: %s)", s, strings.Join(names, ", "))
	}
	return t, nil
}

// EntityKind returns the upstream entity type, e.g. "PROCESS_GROUP_INSTANCE".
func (t ComponentType) EntityKind() string {
	return entityKinds[t]
}

// ComponentTypeForEntityID infers the component type from an entity id such
// as "PROCESS_GROUP_INSTANCE-1A2B". The longest matching kind wins so that
// process group instances are not mistaken for process groups.
func ComponentTypeForEntityID(entityID string) (ComponentType, bool) {
	var (
		best    ComponentType
		bestLen int
	)
	for t, kind := range entityKinds {
		if strings.HasPrefix(entityID, kind+"-") && len(kind) > bestLen {
			best, bestLen = t, len(kind)
		}
	}
	return best, bestLen > 0
}

// Identifier returns the canonical URN of an entity.
func Identifier(entityID string) string {
	return URNPrefix + entityID
}

// Component is one node of the topology document.
type Component struct {
	EntityID    string
	DisplayName string
	Identifiers []string // Identifiers[0] is always Identifier(EntityID)
	Tags        []string // duplicates preserved
	Type        ComponentType

	// Properties is the cleaned "properties" object of the entity. Every scalar
	// leaf is a string.
	Properties jsonvalue.Object

	// Attributes carries the remaining cleaned top-level entity fields
	// (managementZones, softwareTechnologies, discoveredName, ...) in input order.
	Attributes jsonvalue.Object
}

// reservedKeys are emitted from the typed fields and never from Attributes.
var reservedKeys = map[string]bool{
	"entityId":    true,
	"displayName": true,
	"identifiers": true,
	"tags":        true,
	"type":        true,
	"properties":  true,
}

func (c Component) MarshalJSON() ([]byte, error) {
	obj := make(jsonvalue.Object, 0, len(reservedKeys)+len(c.Attributes))
	obj = append(obj,
		jsonvalue.Member{Key: "entityId", Value: jsonvalue.String(c.EntityID)},
		jsonvalue.Member{Key: "displayName", Value: jsonvalue.String(c.DisplayName)},
		jsonvalue.Member{Key: "identifiers", Value: stringArray(c.Identifiers)},
		jsonvalue.Member{Key: "tags", Value: stringArray(c.Tags)},
		jsonvalue.Member{Key: "type", Value: jsonvalue.String(c.Type)},
	)
	if c.Properties != nil {
		obj = append(obj, jsonvalue.Member{Key: "properties", Value: c.Properties})
	}
	for _, m := range c.Attributes {
		if reservedKeys[m.Key] {
			continue
		}
		obj = append(obj, m)
	}
	return obj.MarshalJSON()
}

func stringArray(ss []string) jsonvalue.Array {
	arr := make(jsonvalue.Array, len(ss))
	for i, s := range ss {
		arr[i] = jsonvalue.String(s)
	}
	return arr
}

// Relationship is a directed, typed edge between two entity ids.
type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}
