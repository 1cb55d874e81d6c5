package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/extract"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/logging"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
)

// ConvertOptions controls ConvertFile.
type ConvertOptions struct {
	ComponentType model.ComponentType // inferred when empty
	Timestamp     time.Time           // time.Now when zero
}

// ConvertFile reads a raw dump (a v1 array or a v2 entities object) and
// converts it into a topology document.
func ConvertFile(ctx context.Context, path string, opts ConvertOptions) (*model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read input file %q: %w", path, err)
	}

	page, err := extract.ParsePage(data, extract.VersionAuto)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	componentType := opts.ComponentType
	if componentType == "" {
		if componentType, err = InferComponentType(path, page.Entities); err != nil {
			return nil, err
		}
	}

	logging.FromContext(ctx).Info("Read input file",
		zap.String("path", path),
		zap.Stringer("api", page.Version),
		zap.Int("entities", len(page.Entities)),
		zap.String("component_type", string(componentType)))

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Normalize(ctx, []*extract.Page{page}, model.DocumentInfo{
		SourceFile:    path,
		ComponentType: componentType,
		Timestamp:     ts,
	})
}

// dumpNamePattern matches the "_{type}_{version}_{unix-time}" part of a fetch
// dump name. The environment prefix is free text and is not inspected.
var dumpNamePattern = regexp.MustCompile(`_(process-group|process|host)_v[12]_\d+`)

// InferComponentType derives the component type from the dump file name as
// written by the fetch command, then from words in other file names, falling
// back to the entity id prefix of the first record that has one.
func InferComponentType(path string, entities jsonvalue.Array) (model.ComponentType, error) {
	name := strings.ToLower(filepath.Base(path))
	if m := dumpNamePattern.FindAllStringSubmatch(name, -1); len(m) > 0 {
		return model.ComponentType(m[len(m)-1][1]), nil
	}
	switch {
	case strings.Contains(name, "process_group_instance"):
		return model.ComponentProcess, nil
	case strings.Contains(name, "process-group") || strings.Contains(name, "process_group"):
		return model.ComponentProcessGroup, nil
	case strings.Contains(name, "process"):
		return model.ComponentProcess, nil
	case strings.Contains(name, "host"):
		return model.ComponentHost, nil
	}

	for _, e := range entities {
		obj, ok := e.(jsonvalue.Object)
		if !ok {
			continue
		}
		if id, ok := obj.GetString("entityId"); ok {
			if t, ok := model.ComponentTypeForEntityID(id); ok {
				return t, nil
			}
		}
	}
	return "", fmt.Errorf("cannot infer the component type of %s; pass --component-type", path)
}
