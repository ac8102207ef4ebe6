package fieldtype

import (
	"strconv"
	"strings"
	"time"

	"github.com/surrealdb/entitygraph/internal/slug"
	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/models"
)

func builtins() []Descriptor {
	return []Descriptor{
		{Name: "text", Kind: KindScalar, ToDB: stringToDB(nil)},
		{Name: "textarea", Kind: KindScalar, ToDB: stringToDB(nil)},
		{Name: "markdown", Kind: KindScalar, ToDB: stringToDB(nil)},
		{Name: "html", Kind: KindScalar, ToDB: stringToDB(nil), ToText: htmlToText},
		{Name: "email", Kind: KindScalar, ToDB: stringToDB(strings.ToLower)},
		{Name: "url", Kind: KindScalar, ToDB: stringToDB(nil)},
		{Name: "color", Kind: KindScalar, ToDB: stringToDB(strings.ToLower)},
		{Name: "number", Kind: KindScalar, ToDB: numberToDB, ToText: numberToText},
		{Name: "boolean", Kind: KindScalar, ToDB: booleanToDB, ToText: booleanToText},
		{Name: "date", Kind: KindScalar, ToDB: timeToDB("2006-01-02")},
		{Name: "datetime", Kind: KindScalar, ToDB: timeToDB(time.RFC3339)},
		{Name: "option", Kind: KindReference, ToDB: optionToDB, ToText: titlesToText},
		{Name: "entity", Kind: KindReference, ToDB: entityToDB, ToText: titlesToText, ToThumbnail: entityToThumbnail},
		{Name: "taxonomy", Kind: KindTaxonomy, ToDB: taxonomyToDB, ToText: titlesToText},
		{Name: "image", Kind: KindMedia, ToDB: mediaToDB(imageKeys, false), ToText: mediaToText, ToThumbnail: imageToThumbnail},
		{Name: "gallery", Kind: KindMedia, ToDB: mediaToDB(imageKeys, true), ToText: mediaToText, ToThumbnail: imageToThumbnail},
		{Name: "file", Kind: KindMedia, ToDB: mediaToDB(fileKeys, false), ToText: mediaToText},
		{Name: "audio", Kind: KindMedia, ToDB: mediaToDB(fileKeys, false), ToText: mediaToText},
		{Name: "video", Kind: KindMedia, ToDB: mediaToDB(videoKeys, false), ToText: mediaToText, ToThumbnail: videoToThumbnail},
		{Name: "location", Kind: KindStructured, ToDB: locationToDB, ToText: locationToText},
		{Name: "json", Kind: KindStructured},
	}
}

var (
	imageKeys = []string{"name", "originalName", "url", "mime", "size", "width", "height", "alt", "caption"}
	fileKeys  = []string{"name", "originalName", "url", "mime", "size", "duration"}
	videoKeys = []string{"name", "originalName", "url", "mime", "size", "duration", "width", "height", "poster"}
)

func stringToDB(transform func(string) string) func(any, Settings) any {
	return func(v any, _ Settings) any {
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case bool:
			s = strconv.FormatBool(t)
		default:
			f, ok := value.Float(v)
			if !ok {
				return nil
			}
			s = strconv.FormatFloat(f, 'f', -1, 64)
		}
		s = strings.TrimSpace(s)
		if transform != nil {
			s = transform(s)
		}
		if s == "" {
			return nil
		}
		return s
	}
}

func numberToDB(v any, _ Settings) any {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, ok := value.Float(v)
	if !ok {
		return nil
	}
	return f
}

func numberToText(v any, _ Settings) string {
	f, ok := value.Float(v)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func booleanToDB(v any, _ Settings) any {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
		return nil
	default:
		f, ok := value.Float(v)
		if !ok {
			return nil
		}
		return f != 0
	}
}

func booleanToText(v any, settings Settings) string {
	if !value.Bool(v) {
		return ""
	}
	if label := value.String(settings["label"]); label != "" {
		return label
	}
	return "true"
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
}

func timeToDB(layout string) func(any, Settings) any {
	return func(v any, _ Settings) any {
		s := strings.TrimSpace(value.String(v))
		if s == "" {
			return nil
		}
		for _, l := range timeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t.UTC().Format(layout)
			}
		}
		return nil
	}
}

func asItems(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return []any{t}
	}
}

func pick(m map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			out[k] = value.Clone(v)
		}
	}
	return out
}

func optionToDB(v any, _ Settings) any {
	var out []any
	for _, item := range asItems(v) {
		var opt map[string]any
		switch t := item.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
			opt = map[string]any{"id": t, "title": t}
		case map[string]any:
			opt = pick(t, []string{"id", "title", "slug"})
		default:
			continue
		}
		title := value.String(opt["title"])
		if value.String(opt["id"]) == "" {
			if title == "" {
				continue
			}
			opt["id"] = title
		}
		if value.String(opt["slug"]) == "" {
			opt["slug"] = slug.Kebab(title)
		}
		opt["type"] = constants.TypeOption
		out = append(out, opt)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func entityToDB(v any, _ Settings) any {
	var out []any
	for _, item := range asItems(v) {
		var ref map[string]any
		switch t := item.(type) {
		case string:
			ref = map[string]any{"id": t}
		case map[string]any:
			ref = pick(t, models.ReferenceKeys)
		default:
			continue
		}
		if value.String(ref["id"]) == "" {
			continue
		}
		if value.String(ref["type"]) == "" {
			ref["type"] = constants.TypeEntity
		}
		if _, ok := ref["published"].(bool); !ok {
			ref["published"] = false
		}
		out = append(out, ref)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func entityToThumbnail(v any, settings Settings) *models.Thumbnail {
	for _, item := range asItems(v) {
		ref, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if thumb := imageToThumbnail(ref["thumbnail"], settings); thumb != nil {
			return thumb
		}
	}
	return nil
}

func taxonomyToDB(v any, _ Settings) any {
	var out []any
	for _, item := range asItems(v) {
		t, ok := item.(map[string]any)
		if !ok || value.String(t["id"]) == "" {
			continue
		}
		term := pick(t, []string{"id", "title", "slug"})
		var parents []any
		for _, p := range asItems(t["parents"]) {
			if pm, ok := p.(map[string]any); ok && value.String(pm["id"]) != "" {
				parents = append(parents, pick(pm, []string{"id", "title", "slug"}))
			}
		}
		if len(parents) > 0 {
			term["parents"] = parents
		}
		out = append(out, term)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func titlesToText(v any, _ Settings) string {
	var titles []string
	for _, item := range asItems(v) {
		if m, ok := item.(map[string]any); ok {
			if title := value.String(m["title"]); title != "" {
				titles = append(titles, title)
			}
		}
	}
	return strings.Join(titles, ", ")
}

func mediaToDB(keys []string, forceList bool) func(any, Settings) any {
	return func(v any, _ Settings) any {
		var out []any
		for _, item := range asItems(v) {
			m, ok := item.(map[string]any)
			if !ok || value.String(m["name"]) == "" {
				continue
			}
			file := pick(m, keys)
			for _, dim := range []string{"width", "height", "size", "duration"} {
				if raw, ok := file[dim]; ok {
					if f, ok := value.Float(raw); ok {
						file[dim] = f
					} else {
						delete(file, dim)
					}
				}
			}
			if poster, ok := file["poster"].(map[string]any); ok {
				file["poster"] = pick(poster, imageKeys)
			}
			out = append(out, file)
		}
		switch {
		case len(out) == 0:
			return nil
		case forceList:
			return out
		case len(out) == 1:
			if _, isList := v.([]any); !isList {
				return out[0]
			}
		}
		return out
	}
}

func mediaToText(v any, _ Settings) string {
	var names []string
	for _, item := range asItems(v) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"alt", "originalName", "name"} {
			if s := value.String(m[key]); s != "" {
				names = append(names, s)
				break
			}
		}
	}
	return strings.Join(names, ", ")
}

func imageToThumbnail(v any, _ Settings) *models.Thumbnail {
	for _, item := range asItems(v) {
		m, ok := item.(map[string]any)
		if !ok || value.String(m["name"]) == "" {
			continue
		}
		thumb := &models.Thumbnail{
			Name: value.String(m["name"]),
			URL:  value.String(m["url"]),
			Alt:  value.String(m["alt"]),
		}
		thumb.Width, _ = value.Float(m["width"])
		thumb.Height, _ = value.Float(m["height"])
		return thumb
	}
	return nil
}

func videoToThumbnail(v any, settings Settings) *models.Thumbnail {
	for _, item := range asItems(v) {
		if m, ok := item.(map[string]any); ok {
			if thumb := imageToThumbnail(m["poster"], settings); thumb != nil {
				return thumb
			}
		}
	}
	return nil
}

func locationToDB(v any, _ Settings) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := map[string]any{}
	for _, key := range []string{"lat", "lng"} {
		if f, ok := value.Float(m[key]); ok {
			out[key] = f
		}
	}
	if addr := strings.TrimSpace(value.String(m["address"])); addr != "" {
		out["address"] = addr
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func locationToText(v any, _ Settings) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	if addr := value.String(m["address"]); addr != "" {
		return addr
	}
	lat, okLat := value.Float(m["lat"])
	lng, okLng := value.Float(m["lng"])
	if !okLat || !okLng {
		return ""
	}
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lng, 'f', -1, 64)
}
