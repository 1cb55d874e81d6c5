package output

import (
	"github.com/StinkyLord/dynatrace-topology-builder/internal/extract"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/pagination"
)

// RawDump rebuilds one response body from all pages of a fetch. A v1 dump is
// the concatenated array. A v2 dump is the first page's meta members followed
// by "entities" holding every page's entities; the continuation token is
// dropped. Either form is accepted back by the topology command.
func RawDump(result *pagination.Result) jsonvalue.Value {
	entities := extract.Entities(result.Pages)
	if result.Version != extract.V2 {
		return entities
	}

	dump := jsonvalue.Object{}
	if len(result.Pages) > 0 {
		dump = append(dump, result.Pages[0].Meta...)
	}
	dump.Set("entities", entities)
	return dump
}
