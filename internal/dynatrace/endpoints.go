package dynatrace

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/pagination"
)

// EntitiesPath is the v2 monitored-entities endpoint.
const EntitiesPath = "api/v2/entities"

// DefaultFields is the v2 fields parameter used when none is configured.
const DefaultFields = "+fromRelationships,+toRelationships,+tags,+managementZones,+properties"

var v1Paths = map[model.ComponentType]string{
	model.ComponentProcess:      "api/v1/entity/infrastructure/processes",
	model.ComponentProcessGroup: "api/v1/entity/infrastructure/process-groups",
	model.ComponentHost:         "api/v1/entity/infrastructure/hosts",
}

// QueryOptions parameterizes the initial request of a pagination run.
type QueryOptions struct {
	V1RelativeTime string // e.g. "hour"
	RelativeTime   string // v2 "from", e.g. "now-1h"
	PageSize       int
	Fields         map[model.ComponentType]string
}

// V1Request returns the initial v1 request for componentType.
func V1Request(componentType model.ComponentType, opts QueryOptions) (pagination.Request, error) {
	path, ok := v1Paths[componentType]
	if !ok {
		return pagination.Request{}, fmt.Errorf("no v1 endpoint for component type %q", componentType)
	}
	query := url.Values{}
	query.Set("relativeTime", valueOr(opts.V1RelativeTime, "hour"))
	if opts.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	return pagination.Request{Path: path, Query: query}, nil
}

// V2Request returns the initial v2 request for componentType.
func V2Request(componentType model.ComponentType, opts QueryOptions) (pagination.Request, error) {
	kind := componentType.EntityKind()
	if kind == "" {
		return pagination.Request{}, fmt.Errorf("no v2 entity type for component type %q", componentType)
	}
	query := url.Values{}
	query.Set("entitySelector", EntitySelector(componentType))
	query.Set("from", valueOr(opts.RelativeTime, "now-1h"))
	query.Set("fields", valueOr(opts.Fields[componentType], DefaultFields))
	if opts.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	return pagination.Request{Path: EntitiesPath, Query: query}, nil
}

// EntitySelector returns the v2 selector matching all entities of
// componentType, e.g. type("HOST").
func EntitySelector(componentType model.ComponentType) string {
	return fmt.Sprintf("type(%q)", componentType.EntityKind())
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
