package domain

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("page_url", isPageURL)
	return v
}

// isPageURL accepts absolute URLs with a host. The host names the page's domain node, so
// file:, mailto: and relative URLs cannot be stored.
func isPageURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	return err == nil && u.Scheme != "" && u.Host != ""
}

// FieldError names one record field that failed validation.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError lists every failing field of one record. It unwraps to ErrInvalidRecord.
type ValidationError struct {
	Kind   Kind
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+"("+f.Rule+")")
	}
	return fmt.Sprintf("invalid %s record: %s", e.Kind, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRecord }

// Validate rejects records that are missing identity fields or carry malformed URLs.
// Whitespace-only values count as missing.
func Validate(rec Record) error {
	if rec == nil || reflect.ValueOf(rec).IsNil() {
		return fmt.Errorf("domain: %w: nil record", ErrInvalidRecord)
	}
	trimRecord(rec)
	err := validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("domain: validate %s: %w", rec.Kind(), err)
	}
	out := &ValidationError{Kind: rec.Kind()}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

func trimRecord(rec Record) {
	switch r := rec.(type) {
	case *DomainRecord:
		r.Domain = strings.TrimSpace(r.Domain)
	case *PageRecord:
		r.URL = strings.TrimSpace(r.URL)
		r.Domain = strings.TrimSpace(r.Domain)
	case *PeriodRecord:
		r.Number = Scalar(strings.TrimSpace(string(r.Number)))
		r.Name = strings.TrimSpace(r.Name)
		r.SourcePage = strings.TrimSpace(r.SourcePage)
		r.DetailPage = strings.TrimSpace(r.DetailPage)
	case *PoliticianRecord:
		r.PeriodNumber = Scalar(strings.TrimSpace(string(r.PeriodNumber)))
		r.FullName = strings.TrimSpace(r.FullName)
		r.SourcePage = strings.TrimSpace(r.SourcePage)
		r.DetailPage = strings.TrimSpace(r.DetailPage)
	case *ContentRecord:
		r.SourcePage = strings.TrimSpace(r.SourcePage)
		r.SectionHeader = strings.TrimSpace(r.SectionHeader)
		r.PoliticianDetailPage = strings.TrimSpace(r.PoliticianDetailPage)
	}
}
