// Package pipeline runs fetch-and-normalize for one entity type: pages are
// retrieved by the pagination driver, each record is extracted, and the
// result is assembled into a topology document. Any fatal error discards the
// whole document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/dynatrace"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/extract"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/logging"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/pagination"
)

// Runner fetches and normalizes entity types from one environment.
type Runner struct {
	Driver *pagination.Driver
	Query  dynatrace.QueryOptions
	Now    func() time.Time // time.Now when nil
}

// Fetch pages through all entities of componentType with the given API
// version.
func (r *Runner) Fetch(ctx context.Context, componentType model.ComponentType, version extract.APIVersion) (*pagination.Result, error) {
	switch version {
	case extract.V1:
		req, err := dynatrace.V1Request(componentType, r.Query)
		if err != nil {
			return nil, err
		}
		return r.Driver.FetchV1(ctx, req.Path, req.Query)
	case extract.V2:
		req, err := dynatrace.V2Request(componentType, r.Query)
		if err != nil {
			return nil, err
		}
		return r.Driver.FetchV2(ctx, req.Path, req.Query)
	default:
		return nil, fmt.Errorf("cannot fetch with API version %s", version)
	}
}

// FetchAndNormalize fetches componentType and converts the pages into a
// document whose source_file is source. The raw result is returned alongside
// so the caller can persist it.
func (r *Runner) FetchAndNormalize(ctx context.Context, componentType model.ComponentType, version extract.APIVersion, source string) (*pagination.Result, *model.Document, error) {
	result, err := r.Fetch(ctx, componentType, version)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s (%s): %w", componentType, version, err)
	}
	doc, err := Normalize(ctx, result.Pages, model.DocumentInfo{
		SourceFile:    source,
		ComponentType: componentType,
		Timestamp:     r.now(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("normalize %s (%s): %w", componentType, version, err)
	}
	return result, doc, nil
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Normalize extracts every record of pages, in order, and assembles the
// document. Records without a usable entityId and references without an id
// are skipped and counted in the document metadata. info's skip counters are
// overwritten.
func Normalize(ctx context.Context, pages []*extract.Page, info model.DocumentInfo) (*model.Document, error) {
	log := logging.FromContext(ctx).With(zap.String("component_type", string(info.ComponentType)))

	var (
		components    []*model.Component
		relationships []model.Relationship
		index         int
	)
	info.SkippedRecords, info.SkippedRelationships = 0, 0

	for _, page := range pages {
		opts := extract.Options{ComponentType: info.ComponentType, Version: page.Version}
		for _, record := range page.Entities {
			ex, err := extract.Extract(record, index, opts)
			index++

			var fieldErr *extract.RecordFieldError
			if errors.As(err, &fieldErr) {
				log.Warn("Skipping record", zap.Error(fieldErr))
				info.SkippedRecords++
				continue
			}
			if err != nil {
				return nil, err
			}

			for _, ref := range ex.SkippedReferences {
				log.Debug("Skipping relationship", zap.Error(ref))
			}
			info.SkippedRelationships += len(ex.SkippedReferences)
			components = append(components, ex.Component)
			relationships = append(relationships, ex.Relationships...)
		}
	}

	doc, err := model.Assemble(components, relationships, info)
	if err != nil {
		return nil, err
	}
	log.Info("Assembled topology",
		zap.Int("records", index),
		zap.Int("components", doc.Metadata.ComponentCount),
		zap.Int("relationships", doc.Metadata.RelationshipCount),
		zap.Int("skipped_records", info.SkippedRecords),
		zap.Int("skipped_relationships", info.SkippedRelationships))
	return doc, nil
}
