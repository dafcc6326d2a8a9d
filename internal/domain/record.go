package domain

// Kind is the record discriminator written by the extraction process. The values match the
// item_type strings the crawler emits.
type Kind string

const (
	KindDomain     Kind = "domain"
	KindPage       Kind = "page"
	KindPeriod     Kind = "legislative_period"
	KindPolitician Kind = "politician"
	KindContent    Kind = "politician_content"
)

// Kinds lists every known kind in a stable order.
var Kinds = []Kind{KindDomain, KindPage, KindPeriod, KindPolitician, KindContent}

func (k Kind) Valid() bool {
	switch k {
	case KindDomain, KindPage, KindPeriod, KindPolitician, KindContent:
		return true
	default:
		return false
	}
}

func (k Kind) String() string { return string(k) }

// Record is one typed inbound record.
type Record interface {
	Kind() Kind
}

type DomainRecord struct {
	Domain      string `json:"domain" validate:"required"`
	Description string `json:"description,omitempty"`
}

func (*DomainRecord) Kind() Kind { return KindDomain }

type PageRecord struct {
	URL    string `json:"url" validate:"required,page_url"`
	Title  string `json:"title,omitempty"`
	HTML   string `json:"full_html,omitempty"`
	Domain string `json:"source_domain" validate:"required"`
}

func (*PageRecord) Kind() Kind { return KindPage }

type PeriodRecord struct {
	Number     Scalar `json:"period_number" validate:"required"`
	Name       string `json:"name" validate:"required"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	SourcePage string `json:"source_page,omitempty" validate:"omitempty,page_url"`
	DetailPage string `json:"detail_page,omitempty" validate:"omitempty,page_url"`
}

func (*PeriodRecord) Kind() Kind { return KindPeriod }

type PoliticianRecord struct {
	PeriodNumber Scalar `json:"legislative_period_number,omitempty"`
	FullName     string `json:"full_name" validate:"required"`
	Firstname    string `json:"firstname,omitempty"`
	Lastname     string `json:"lastname,omitempty"`
	Birthname    string `json:"birthname,omitempty"`
	BirthYear    Scalar `json:"birth_year,omitempty"`
	DeathYear    Scalar `json:"death_year,omitempty"`
	Party        string `json:"political_party,omitempty"`
	State        string `json:"federate_state,omitempty"`
	Constituency string `json:"constituency,omitempty"`
	Remarks      string `json:"remarks,omitempty"`
	SourcePage   string `json:"source_page" validate:"required,page_url"`
	DetailPage   string `json:"detail_page" validate:"required,page_url"`
}

func (*PoliticianRecord) Kind() Kind { return KindPolitician }

// MissingSoftFields names the descriptive fields the extractor is expected to fill but
// whose absence does not block ingestion.
func (p *PoliticianRecord) MissingSoftFields() []string {
	var missing []string
	if p.Firstname == "" {
		missing = append(missing, "firstname")
	}
	if p.Lastname == "" {
		missing = append(missing, "lastname")
	}
	if p.BirthYear.Empty() {
		missing = append(missing, "birth_year")
	}
	if p.PeriodNumber.Empty() {
		missing = append(missing, "legislative_period_number")
	}
	return missing
}

type ContentRecord struct {
	SourcePage    string `json:"source_page" validate:"required,page_url"`
	SectionHeader string `json:"section_header" validate:"required"`
	SectionText   string `json:"section_content,omitempty"`
	// PoliticianDetailPage names the politician owning this section. When empty the
	// source page is assumed to be that politician's detail page.
	PoliticianDetailPage string `json:"politician_detail_page,omitempty" validate:"omitempty,page_url"`
}

func (*ContentRecord) Kind() Kind { return KindContent }

// Owner returns the detail page of the politician the content belongs to.
func (c *ContentRecord) Owner() string {
	if c.PoliticianDetailPage != "" {
		return c.PoliticianDetailPage
	}
	return c.SourcePage
}
