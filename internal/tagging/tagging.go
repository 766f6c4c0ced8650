// Package tagging extracts tag collections from heterogeneous AWS payloads.
//
// AWS has no single tag shape: EC2 returns []Tag under Tags, S3 wraps a
// TagSet, ElastiCache uses TagList, CloudTrail uses TagsList, Lambda and
// EKS return plain maps. One reflection-based probe covers all of them so
// scanner units never duplicate per-service tag plumbing.
package tagging

import (
	"reflect"
	"sort"
)

// candidateFields are probed in order; the first non-empty hit wins.
var candidateFields = []string{"Tags", "TagSet", "TagList", "TagsList", "ResourceTags"}

// Extract pulls the tag collection out of any resource payload. Payloads
// may be structs or string-keyed maps; candidates are matched as field
// names on the former and as keys on the latter. Slice candidates are
// returned element-by-element, map candidates as their sorted key set,
// and wrapper structs (Tags holding a TagSet) are unwrapped one level.
// A payload with no recognizable tag field yields nil.
func Extract(resource interface{}) []interface{} {
	v := payloadValue(resource)
	if !v.IsValid() {
		return nil
	}

	for _, name := range candidateFields {
		candidate := fieldOrKey(v, name)
		if !candidate.IsValid() {
			continue
		}
		if tags := collect(candidate); len(tags) > 0 {
			return tags
		}
	}
	return nil
}

// HasNoTags reports whether a resource carries no tags at all.
// A nil resource counts as untagged.
func HasNoTags(resource interface{}) bool {
	return len(Extract(resource)) == 0
}

// payloadValue unwraps pointers and interfaces down to a struct or a
// string-keyed map, the two payload shapes the probe understands.
func payloadValue(resource interface{}) reflect.Value {
	if resource == nil {
		return reflect.Value{}
	}

	v := reflect.ValueOf(resource)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		return v
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			return v
		}
	}
	return reflect.Value{}
}

// fieldOrKey resolves one candidate name against a struct field or map key.
func fieldOrKey(v reflect.Value, name string) reflect.Value {
	if v.Kind() == reflect.Map {
		return v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
	}
	return v.FieldByName(name)
}

// collect flattens one candidate field into a tag slice.
func collect(field reflect.Value) []interface{} {
	for field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface {
		if field.IsNil() {
			return nil
		}
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.Slice:
		tags := make([]interface{}, 0, field.Len())
		for i := 0; i < field.Len(); i++ {
			tags = append(tags, field.Index(i).Interface())
		}
		return tags

	case reflect.Map:
		// Map tags (Lambda, EKS, etc.) reduce to their key set; values
		// never influence the untagged decision.
		keys := make([]string, 0, field.Len())
		for _, k := range field.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		tags := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			tags = append(tags, k)
		}
		return tags

	case reflect.Struct:
		// Wrapper shapes like GetBucketTaggingOutput{TagSet: [...]}.
		if inner := field.FieldByName("TagSet"); inner.IsValid() {
			return collect(inner)
		}
	}
	return nil
}
