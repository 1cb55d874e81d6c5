// Package extract turns raw Dynatrace entity payloads into canonical topology
// components and relationships.
//
// Both API versions are read into jsonvalue trees. Page-level shape handling
// lives in ParsePage; the v2 process-group shape is adapted to the v1 shape by
// NormalizeProcessGroup before any of the shared extractors run.
package extract

import (
	"fmt"
	"strings"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
)

// APIVersion selects the upstream API flavour.
type APIVersion int

const (
	// VersionAuto accepts either page shape.
	VersionAuto APIVersion = iota
	V1
	V2
)

func (v APIVersion) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "auto"
	}
}

// ParseAPIVersion accepts "v1"/"1" and "v2"/"2".
func ParseAPIVersion(s string) (APIVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return V1, nil
	case "v2", "2":
		return V2, nil
	default:
		return VersionAuto, fmt.Errorf("unsupported API version %q (supported: v1, v2)", s)
	}
}

// Page is one decoded page body.
type Page struct {
	Version  APIVersion
	Entities jsonvalue.Array

	// NextPageKey is the in-body continuation token of a v2 page. v1 pages
	// never carry one; their token travels out of band.
	NextPageKey string

	// Meta holds the top-level members of a v2 page other than "entities" and
	// "nextPageKey" (totalCount, pageSize).
	Meta jsonvalue.Object
}

// ParsePage decodes a raw page body. With expect set to V1 or V2 a body of the
// other shape is rejected.
func ParsePage(data []byte, expect APIVersion) (*Page, error) {
	v, err := jsonvalue.Parse(data)
	if err != nil {
		return nil, &SchemaError{Expected: expect, Err: err}
	}
	return PageFromValue(v, expect)
}

// PageFromValue is ParsePage for an already decoded body.
func PageFromValue(v jsonvalue.Value, expect APIVersion) (*Page, error) {
	switch body := v.(type) {
	case jsonvalue.Array:
		if expect == V2 {
			return nil, &SchemaError{Expected: expect, Found: jsonvalue.KindArray, Detail: "got a bare array"}
		}
		return &Page{Version: V1, Entities: body}, nil

	case jsonvalue.Object:
		if expect == V1 {
			return nil, &SchemaError{Expected: expect, Found: jsonvalue.KindObject, Detail: "got an object"}
		}
		raw, ok := body.Get("entities")
		if !ok {
			return nil, &SchemaError{Expected: expect, Found: jsonvalue.KindObject, Detail: `object has no "entities" member`}
		}
		entities, ok := raw.(jsonvalue.Array)
		if !ok {
			return nil, &SchemaError{
				Expected: expect,
				Found:    jsonvalue.KindObject,
				Detail:   fmt.Sprintf(`"entities" is a %s, not an array`, jsonvalue.KindOf(raw)),
			}
		}

		page := &Page{Version: V2, Entities: entities, Meta: jsonvalue.Object{}}
		for _, m := range body {
			switch m.Key {
			case "entities":
			case "nextPageKey":
				page.NextPageKey, _ = jsonvalue.Text(m.Value)
			default:
				page.Meta = append(page.Meta, m)
			}
		}
		return page, nil

	default:
		return nil, &SchemaError{Expected: expect, Found: jsonvalue.KindOf(v), Detail: "top-level value is a " + jsonvalue.KindOf(v).String()}
	}
}

// Entities concatenates the entity records of pages in order. No
// deduplication is performed.
func Entities(pages []*Page) jsonvalue.Array {
	n := 0
	for _, p := range pages {
		n += len(p.Entities)
	}
	out := make(jsonvalue.Array, 0, n)
	for _, p := range pages {
		out = append(out, p.Entities...)
	}
	return out
}
