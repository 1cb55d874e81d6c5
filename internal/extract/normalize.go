package extract

import (
	"fmt"

	"github.com/mohae/deepcopy"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"
)

// metadataKeys maps v2 process-group metadata keys to their v1 field names.
// Keys not listed here are kept as-is.
var metadataKeys = map[string]string{
	"COMMAND_LINE_ARGS":            "commandLineArgs",
	"EXE_NAME":                     "executables",
	"EXE_PATH":                     "executablePaths",
	"JAVA_MAIN_CLASS":              "javaMainClasses",
	"CONTAINER_IMAGE_NAME":         "containerImageNames",
	"CONTAINER_IMAGE_VERSION":      "containerImageVersions",
	"CONTAINER_NAME":               "containerNames",
	"ELASTIC_SEARCH_CLUSTER_NAMES": "elasticSearchClusterNames",
	"ELASTIC_SEARCH_NODE_NAMES":    "elasticSearchNodeNames",
	"PG_ID_CALC_INPUT_KEY_LINKAGE": "pgIdCalcInputKeyLinkage",
	"JAVA_JAR_FILE":                "javaJarFiles",
	"JAVA_JAR_PATH":                "javaJarPaths",
}

// NormalizeProcessGroup reshapes a v2 process-group record into the v1 layout
// shared by process and host records. The input is not modified.
//
// listenPorts and softwareTechnologies move from properties to the top level,
// properties.detectedName fills a missing discoveredName, and the
// properties.metadata list of {key, value} entries becomes a top-level object
// of arrays keyed by v1 names. Absent relationship and tag containers default
// to empty ones.
func NormalizeProcessGroup(entity jsonvalue.Object) jsonvalue.Object {
	out, _ := deepcopy.Copy(entity).(jsonvalue.Object)
	if out == nil {
		out = jsonvalue.Object{}
	}

	if props, ok := out.GetObject("properties"); ok {
		hoist(&out, &props, "listenPorts")
		hoist(&out, &props, "softwareTechnologies")

		if detected, ok := props.Get("detectedName"); ok && jsonvalue.Truthy(detected) {
			if current, _ := out.Get("discoveredName"); !jsonvalue.Truthy(current) {
				out.Set("discoveredName", detected)
			}
		}

		if entries, ok := props.GetArray("metadata"); ok {
			props.Delete("metadata")
			out.Set("metadata", metadataToV1(entries))
		}

		out.Set("properties", props)
	}

	for _, key := range []string{"fromRelationships", "toRelationships"} {
		if !out.Has(key) {
			out.Set(key, jsonvalue.Object{})
		}
	}
	for _, key := range []string{"tags", "managementZones"} {
		if !out.Has(key) {
			out.Set(key, jsonvalue.Array{})
		}
	}
	return out
}

// hoist moves an array member from props to the top level of entity.
func hoist(entity, props *jsonvalue.Object, key string) {
	v, ok := props.GetArray(key)
	if !ok {
		return
	}
	props.Delete(key)
	entity.Set(key, v)
}

func metadataToV1(entries jsonvalue.Array) jsonvalue.Object {
	out := jsonvalue.Object{}
	for _, e := range entries {
		entry, ok := e.(jsonvalue.Object)
		if !ok {
			continue
		}
		raw, _ := entry.Get("key")
		key, ok := jsonvalue.Text(raw)
		if !ok || key == "" {
			continue
		}
		if mapped, ok := metadataKeys[key]; ok {
			key = mapped
		}

		values, _ := out.GetArray(key)
		if values == nil {
			values = jsonvalue.Array{}
		}
		if v, ok := entry.Get("value"); ok && jsonvalue.KindOf(v) != jsonvalue.KindNull {
			values = append(values, v)
		}
		out.Set(key, values)
	}
	return out
}

// AdaptProperties repairs property fields whose upstream shape is known to
// vary, so that the cleaned properties have one stable layout. The input is
// not modified.
func AdaptProperties(props jsonvalue.Object) jsonvalue.Object {
	out := make(jsonvalue.Object, len(props))
	copy(out, props)

	if v, ok := out.Get("releasesVersion"); ok && jsonvalue.KindOf(v) == jsonvalue.KindString {
		out.Set("releasesVersion", jsonvalue.Object{})
	}

	if services, ok := out.GetArray("osServices"); ok {
		out.Set("osServices", osServiceNames(services))
	}

	if v, ok := out.Get("customPgMetadata"); ok {
		switch t := v.(type) {
		case jsonvalue.Array:
			out.Set("customPgMetadata", customMetadataToObject(t))
		case jsonvalue.Object:
		default:
			out.Set("customPgMetadata", jsonvalue.Object{})
		}
	}

	for _, key := range []string{"logFileStatus", "logSourceState"} {
		v, ok := out.Get(key)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case jsonvalue.Array:
			out.Set(key, jsonvalue.Object{{Key: key, Value: t}})
		case jsonvalue.Object:
		default:
			out.Set(key, jsonvalue.Null{})
		}
	}
	return out
}

func osServiceNames(services jsonvalue.Array) jsonvalue.Array {
	names := make(jsonvalue.Array, 0, len(services))
	for i, s := range services {
		switch t := s.(type) {
		case jsonvalue.Object:
			name := firstText(t, "dt.osservice.name", "dt.osservice.display_name")
			if name == "" {
				name = fmt.Sprintf("unknown_service_%d", i)
			}
			names = append(names, jsonvalue.String(name))
		case jsonvalue.String:
			names = append(names, t)
		default:
			names = append(names, jsonvalue.String(render(s)))
		}
	}
	return names
}

func customMetadataToObject(items jsonvalue.Array) jsonvalue.Object {
	out := jsonvalue.Object{}
	for i, it := range items {
		item, ok := it.(jsonvalue.Object)
		if !ok {
			out.Set(fmt.Sprintf("item_%d", i), jsonvalue.String(render(it)))
			continue
		}

		key := fmt.Sprintf("unknown_key_%d", i)
		raw, _ := item.Get("key")
		if nested, ok := raw.(jsonvalue.Object); ok {
			nk, _ := nested.Get("key")
			if s, ok := jsonvalue.Text(nk); ok {
				key = s
			}
		} else if s, ok := jsonvalue.Text(raw); ok {
			key = s
		}

		value, ok := item.Get("value")
		if !ok {
			value, ok = item.Get("val")
		}
		if !ok {
			value = jsonvalue.String(fmt.Sprintf("unknown_value_%d", i))
		}
		out.Set(key, value)
	}
	return out
}

// firstText returns the first truthy scalar member among keys.
func firstText(o jsonvalue.Object, keys ...string) string {
	for _, k := range keys {
		v, _ := o.Get(k)
		if !jsonvalue.Truthy(v) {
			continue
		}
		if s, ok := jsonvalue.Text(v); ok {
			return s
		}
	}
	return ""
}

// render returns the text of a scalar or the compact JSON of anything else.
func render(v jsonvalue.Value) string {
	if s, ok := jsonvalue.Text(v); ok {
		return s
	}
	if v == nil {
		return "null"
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}
