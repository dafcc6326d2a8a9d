package graph

import "fmt"

type Label string

const (
	LabelDomain       Label = "Domain"
	LabelPage         Label = "Page"
	LabelPeriod       Label = "Period"
	LabelPolitician   Label = "Politician"
	LabelMandate      Label = "Mandate"
	LabelParty        Label = "Party"
	LabelState        Label = "State"
	LabelConstituency Label = "Constituency"
	LabelContent      Label = "Content"
)

type RelType string

const (
	RelBelongsToDomain        RelType = "BELONGS_TO_DOMAIN"
	RelHasSourcePage          RelType = "HAS_SOURCE_PAGE"
	RelHasDetailPage          RelType = "HAS_DETAIL_PAGE"
	RelLinksToDetail          RelType = "LINKS_TO_DETAIL"
	RelServedDuring           RelType = "SERVED_DURING"
	RelHasMandate             RelType = "HAS_MANDATE"
	RelInPeriod               RelType = "IN_PERIOD"
	RelAffiliatedWith         RelType = "AFFILIATED_WITH"
	RelRepresentsState        RelType = "REPRESENTS_STATE"
	RelRepresentsConstituency RelType = "REPRESENTS_CONSTITUENCY"
	RelHasContent             RelType = "HAS_CONTENT"
)

// Policy decides what a repeated sighting of a node may do to a property. Neither policy
// ever overwrites a stored value.
type Policy int

const (
	// SetOnCreate properties are written when the node is created and never again.
	SetOnCreate Policy = iota
	// FillIfAbsent properties are also written on later sightings while still unset.
	FillIfAbsent
)

func (p Policy) String() string {
	switch p {
	case SetOnCreate:
		return "set_on_create"
	case FillIfAbsent:
		return "fill_if_absent"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

type PropSpec struct {
	Name   string
	Policy Policy
}

// NodeSpec describes one node label: its identity property and the attributes it carries.
type NodeSpec struct {
	Label Label
	Key   string
	Props []PropSpec
}

func (s NodeSpec) prop(name string) (PropSpec, bool) {
	for _, p := range s.Props {
		if p.Name == name {
			return p, true
		}
	}
	return PropSpec{}, false
}

var schema = []NodeSpec{
	{Label: LabelDomain, Key: "name", Props: []PropSpec{
		{"description", FillIfAbsent},
	}},
	{Label: LabelPage, Key: "url", Props: []PropSpec{
		{"title", FillIfAbsent},
		{"html", FillIfAbsent},
	}},
	{Label: LabelPeriod, Key: "number", Props: []PropSpec{
		{"name", FillIfAbsent},
		{"start_date", FillIfAbsent},
		{"end_date", FillIfAbsent},
	}},
	{Label: LabelPolitician, Key: "detail_page", Props: []PropSpec{
		{"full_name", FillIfAbsent},
		{"firstname", FillIfAbsent},
		{"lastname", FillIfAbsent},
		{"birthname", FillIfAbsent},
		{"birth_year", FillIfAbsent},
		{"death_year", FillIfAbsent},
		{"remarks", FillIfAbsent},
	}},
	{Label: LabelMandate, Key: "id", Props: []PropSpec{
		{"political_party", FillIfAbsent},
		{"federate_state", FillIfAbsent},
		{"constituency", FillIfAbsent},
	}},
	{Label: LabelParty, Key: "name"},
	{Label: LabelState, Key: "name"},
	{Label: LabelConstituency, Key: "name"},
	{Label: LabelContent, Key: "id", Props: []PropSpec{
		{"section_header", SetOnCreate},
		{"section_content", FillIfAbsent},
	}},
}

var specByLabel = func() map[Label]NodeSpec {
	m := make(map[Label]NodeSpec, len(schema))
	for _, s := range schema {
		m[s.Label] = s
	}
	return m
}()

// Schema returns the node specs in declaration order.
func Schema() []NodeSpec {
	out := make([]NodeSpec, len(schema))
	copy(out, schema)
	return out
}

func SpecFor(label Label) (NodeSpec, bool) {
	s, ok := specByLabel[label]
	return s, ok
}

var relTypes = map[RelType]struct{}{
	RelBelongsToDomain: {}, RelHasSourcePage: {}, RelHasDetailPage: {}, RelLinksToDetail: {},
	RelServedDuring: {}, RelHasMandate: {}, RelInPeriod: {}, RelAffiliatedWith: {},
	RelRepresentsState: {}, RelRepresentsConstituency: {}, RelHasContent: {},
}
