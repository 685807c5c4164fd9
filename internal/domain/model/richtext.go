package model

// Rich-text feature discriminators.
const (
	FeatureMention = "app.bsky.richtext.facet#mention"
	FeatureLink    = "app.bsky.richtext.facet#link"
	FeatureTag     = "app.bsky.richtext.facet#tag"
)

// Facet annotates a byte range of a post's text.
type Facet struct {
	Index    ByteSlice `json:"index"`
	Features []Feature `json:"features"`
}

// ByteSlice is a UTF-8 byte range, end exclusive.
type ByteSlice struct {
	ByteStart int64 `json:"byteStart"`
	ByteEnd   int64 `json:"byteEnd"`
}

// Mention references an actor.
type Mention struct {
	DID string `json:"did"`
}

// Link references a URI.
type Link struct {
	URI string `json:"uri"`
}

// Tag is a hashtag without the leading '#'.
type Tag struct {
	Tag string `json:"tag"`
}

// Feature is one facet feature. Exactly one of Mention, Link or Tag is set
// for known types; unknown types keep only Type and Fields.
type Feature struct {
	Type    string
	Mention *Mention
	Link    *Link
	Tag     *Tag
	Fields  map[string]any
}

func (f *Feature) assign(fields map[string]any, decode func(v any) error) error {
	*f = Feature{Type: typeOf(fields), Fields: fields}
	switch f.Type {
	case FeatureMention:
		f.Mention = &Mention{}
		return decode(f.Mention)
	case FeatureLink:
		f.Link = &Link{}
		return decode(f.Link)
	case FeatureTag:
		f.Tag = &Tag{}
		return decode(f.Tag)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Feature) UnmarshalJSON(b []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	return f.assign(fields, func(v any) error { return json.Unmarshal(b, v) })
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (f *Feature) UnmarshalCBOR(b []byte) error {
	var fields map[string]any
	if err := cborDec.Unmarshal(b, &fields); err != nil {
		return err
	}
	return f.assign(fields, func(v any) error { return cborDec.Unmarshal(b, v) })
}

// MarshalJSON implements json.Marshaler.
func (f Feature) MarshalJSON() ([]byte, error) {
	if f.Fields != nil {
		return json.Marshal(f.Fields)
	}
	out := map[string]any{"$type": f.Type}
	switch {
	case f.Mention != nil:
		out["did"] = f.Mention.DID
	case f.Link != nil:
		out["uri"] = f.Link.URI
	case f.Tag != nil:
		out["tag"] = f.Tag.Tag
	}
	return json.Marshal(out)
}

// HasMention reports whether any facet carries a mention feature.
func (p *Post) HasMention() bool {
	return p.hasFeature(func(f Feature) bool { return f.Mention != nil })
}

// HasLinks reports whether any facet carries a link feature.
func (p *Post) HasLinks() bool {
	return p.hasFeature(func(f Feature) bool { return f.Link != nil })
}

// Links returns the URIs of all link features in facet order. The result is
// never nil.
func (p *Post) Links() []string {
	links := []string{}
	if p == nil {
		return links
	}
	for _, facet := range p.Facets {
		for _, f := range facet.Features {
			if f.Link != nil {
				links = append(links, f.Link.URI)
			}
		}
	}
	return links
}

// Mentions returns the DIDs of all mention features in facet order.
func (p *Post) Mentions() []string {
	dids := []string{}
	if p == nil {
		return dids
	}
	for _, facet := range p.Facets {
		for _, f := range facet.Features {
			if f.Mention != nil {
				dids = append(dids, f.Mention.DID)
			}
		}
	}
	return dids
}

func (p *Post) hasFeature(match func(Feature) bool) bool {
	if p == nil {
		return false
	}
	for _, facet := range p.Facets {
		for _, f := range facet.Features {
			if match(f) {
				return true
			}
		}
	}
	return false
}
