package extract

import "github.com/StinkyLord/dynatrace-topology-builder/internal/jsonvalue"

// Tags flattens the tag-like sources of an entity into one sequence, in this
// order: tags, managementZones, softwareTechnologies, monitoringState.
// Duplicates are kept and absent sources contribute nothing.
func Tags(entity jsonvalue.Object) []string {
	tags := []string{}

	if entries, ok := entity.GetArray("tags"); ok {
		for _, e := range entries {
			switch tag := e.(type) {
			case jsonvalue.Object:
				key := firstText(tag, "key")
				if key == "" {
					continue
				}
				if value, ok := scalarText(tag, "value"); ok {
					key += ":" + value
				}
				tags = append(tags, key)
			case jsonvalue.String:
				if tag != "" {
					tags = append(tags, string(tag))
				}
			}
		}
	}

	if zones, ok := entity.GetArray("managementZones"); ok {
		for _, z := range zones {
			if name := nameOf(z, "name"); name != "" {
				tags = append(tags, "managementZones:"+name)
			}
		}
	}

	if techs, ok := entity.GetArray("softwareTechnologies"); ok {
		for _, t := range techs {
			name := nameOf(t, "type", "name")
			if name == "" {
				continue
			}
			label := "softwareTechnologies:" + name
			if obj, ok := t.(jsonvalue.Object); ok {
				if edition := firstText(obj, "edition"); edition != "" {
					label += ":" + edition
				}
				if version := firstText(obj, "version"); version != "" {
					label += ":" + version
				}
			}
			tags = append(tags, label)
		}
	}

	if state, ok := entity.GetObject("monitoringState"); ok {
		for _, m := range state {
			if value, ok := jsonvalue.Text(m.Value); ok {
				tags = append(tags, m.Key+":"+value)
			}
		}
	}

	return tags
}

// nameOf returns a plain string entry, or the first truthy scalar among keys
// of an object entry.
func nameOf(v jsonvalue.Value, keys ...string) string {
	switch t := v.(type) {
	case jsonvalue.String:
		return string(t)
	case jsonvalue.Object:
		return firstText(t, keys...)
	default:
		return ""
	}
}

// scalarText returns the text of key when it holds a string, number or bool.
// false, 0 and "" are values; null and containers are not.
func scalarText(o jsonvalue.Object, key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	return jsonvalue.Text(v)
}
