package store

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Entity types of the tool data
const (
	EntityIDs        = "ids"
	EntityKeys       = "keys"
	EntityNames      = "names"
	EntityTitles     = "titles"
	EntityURLs       = "urls"
	EntityDates      = "dates"
	EntityCategories = "categories"
	EntityAuthors    = "authors"
	EntitySources    = "sources"
	EntityCounts     = "counts"
)

// EntityTypes lists the entity types in the stable order
var EntityTypes = []string{
	EntityIDs,
	EntityKeys,
	EntityNames,
	EntityTitles,
	EntityURLs,
	EntityDates,
	EntityCategories,
	EntityAuthors,
	EntitySources,
	EntityCounts,
}

// EntityRef is a value found in the tool data
type EntityRef struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Type  string `json:"type,omitempty"`
	Path  string `json:"path"`
}

// ToolEntities are the values found in the tool data, by entity type
type ToolEntities struct {
	IDs        []EntityRef    `json:"ids"`
	Keys       []EntityRef    `json:"keys"`
	Names      []EntityRef    `json:"names"`
	Titles     []EntityRef    `json:"titles"`
	URLs       []EntityRef    `json:"urls"`
	Dates      []EntityRef    `json:"dates"`
	Categories []EntityRef    `json:"categories"`
	Authors    []EntityRef    `json:"authors"`
	Sources    []EntityRef    `json:"sources"`
	Counts     map[string]int `json:"counts"`
}

// List returns the entities of the type, nil for counts or unknown types
func (e *ToolEntities) List(entityType string) []EntityRef {
	if e == nil {
		return nil
	}
	switch entityType {
	case EntityIDs:
		return e.IDs
	case EntityKeys:
		return e.Keys
	case EntityNames:
		return e.Names
	case EntityTitles:
		return e.Titles
	case EntityURLs:
		return e.URLs
	case EntityDates:
		return e.Dates
	case EntityCategories:
		return e.Categories
	case EntityAuthors:
		return e.Authors
	case EntitySources:
		return e.Sources
	}
	return nil
}

// Collected returns the entity types with values, keys are not reported
func (e *ToolEntities) Collected() []string {
	if e == nil {
		return nil
	}
	var res []string
	for _, typ := range EntityTypes {
		switch typ {
		case EntityKeys:
		case EntityCounts:
			if len(e.Counts) > 0 {
				res = append(res, typ)
			}
		default:
			if len(e.List(typ)) > 0 {
				res = append(res, typ)
			}
		}
	}
	return res
}

// HasValue returns true if any entity has the value
func (e *ToolEntities) HasValue(value string) bool {
	if e == nil {
		return false
	}
	for _, typ := range EntityTypes {
		for _, ref := range e.List(typ) {
			if ref.Value != nil && fmt.Sprint(ref.Value) == value {
				return true
			}
		}
	}
	return false
}

var entityKeys = []struct {
	typ  string
	keys []string
}{
	{EntityIDs, []string{"id", "_id", "key", "uuid", "identifier"}},
	{EntityNames, []string{"name", "title", "headline", "subject"}},
	{EntityURLs, []string{"url", "link", "href", "src"}},
	{EntityDates, []string{"date", "created_at", "updated_at", "published_at", "timestamp"}},
	{EntityCategories, []string{"category", "type", "section", "tag"}},
	{EntityAuthors, []string{"author", "writer", "creator", "by"}},
	{EntitySources, []string{"source", "provider", "origin"}},
}

// ExtractEntities walks the "result" of the raw tool data
// and collects identifiers, names, urls, dates and other values by key.
// Paths use the a.b[0].c notation.
func ExtractEntities(raw []byte) *ToolEntities {
	e := &ToolEntities{
		Counts: map[string]int{},
	}
	result := gjson.GetBytes(raw, "result")
	if truthy(result) {
		e.walk(result, "")
	}
	return e
}

func (e *ToolEntities) walk(data gjson.Result, path string) {
	switch {
	case data.IsObject():
		data.ForEach(func(k, v gjson.Result) bool {
			key := k.String()
			current := key
			if path != "" {
				current = path + "." + key
			}
			e.add(key, v, current)
			e.walk(v, current)
			return true
		})
	case data.IsArray():
		items := data.Array()
		e.Counts[path+"_count"] = len(items)
		for i, item := range items {
			e.walk(item, fmt.Sprintf("%s[%d]", path, i))
		}
	}
}

func (e *ToolEntities) add(key string, v gjson.Result, path string) {
	lower := strings.ToLower(key)
	ref := EntityRef{Key: key, Value: v.Value(), Path: path}

loop:
	for _, group := range entityKeys {
		for _, k := range group.keys {
			if lower != k {
				continue
			}
			switch group.typ {
			case EntityIDs:
				e.IDs = append(e.IDs, ref)
			case EntityNames:
				e.Names = append(e.Names, ref)
				if lower == "title" {
					e.Titles = append(e.Titles, ref)
				}
			case EntityURLs:
				e.URLs = append(e.URLs, ref)
			case EntityDates:
				e.Dates = append(e.Dates, ref)
			case EntityCategories:
				e.Categories = append(e.Categories, ref)
			case EntityAuthors:
				e.Authors = append(e.Authors, ref)
			case EntitySources:
				e.Sources = append(e.Sources, ref)
			}
			break loop
		}
	}

	e.Keys = append(e.Keys, EntityRef{Key: key, Type: typeName(v), Path: path})
}

func typeName(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	}
	if v.IsArray() {
		return "array"
	}
	return "object"
}

func truthy(v gjson.Result) bool {
	if !v.Exists() {
		return false
	}
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) > 0
		}
		found := false
		v.ForEach(func(_, _ gjson.Result) bool {
			found = true
			return false
		})
		return found
	}
	return true
}

// hasToolData returns true for a non-empty JSON object
func hasToolData(raw []byte) bool {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return false
	}
	v := gjson.ParseBytes(raw)
	return v.IsObject() && truthy(v)
}
