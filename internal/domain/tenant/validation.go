package tenant

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/atriumlabs/atrium/internal/domain"
)

// slugPattern matches URL-safe tenant slugs: lowercase alphanumerics and
// hyphens, 1-50 characters.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]{1,50}$`)

const (
	maxNameLen = 100
	maxKeyLen  = 100
)

// Name is a validated tenant display name.
type Name string

// NewName validates a raw display name (1-100 characters).
func NewName(raw string) (Name, error) {
	n := utf8.RuneCountInString(raw)
	if n == 0 || n > maxNameLen {
		return "", fmt.Errorf("name must be 1-%d characters: %w", maxNameLen, domain.ErrValidation)
	}
	return Name(raw), nil
}

// String returns the validated name value.
func (n Name) String() string { return string(n) }

// Slug is a validated URL-safe tenant identifier.
type Slug string

// NewSlug validates a raw slug (1-50 characters, charset [a-z0-9-]).
func NewSlug(raw string) (Slug, error) {
	if !slugPattern.MatchString(raw) {
		return "", fmt.Errorf("slug must be 1-50 characters of [a-z0-9-]: %w", domain.ErrValidation)
	}
	return Slug(raw), nil
}

// String returns the validated slug value.
func (s Slug) String() string { return string(s) }

// ValidateCreate checks a creation request and returns a tenant draft with
// timezone and metadata defaulted. The draft carries no ID; the caller assigns
// one. All invalid fields are reported together.
func ValidateCreate(req CreateRequest, defaultTimezone string) (*Tenant, error) {
	var fields []domain.FieldError

	name, err := NewName(req.Name)
	if err != nil {
		fields = append(fields, domain.FieldError{Field: "name", Message: fmt.Sprintf("must be 1-%d characters", maxNameLen)})
	}
	slug, err := NewSlug(req.Slug)
	if err != nil {
		fields = append(fields, domain.FieldError{Field: "slug", Message: "must be 1-50 characters of [a-z0-9-]"})
	}

	tz := req.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	if err := validTimezone(tz); err != nil {
		fields = append(fields, domain.FieldError{Field: "timezone", Message: "must be a valid IANA timezone"})
	}

	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields...)
	}

	meta := req.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	return &Tenant{
		Name:     name.String(),
		Slug:     slug.String(),
		Timezone: tz,
		Metadata: meta,
	}, nil
}

// ValidateUpdate checks an update request. Every field is optional and an
// entirely empty request is valid (a no-op update).
func ValidateUpdate(req UpdateRequest) error {
	var fields []domain.FieldError

	if req.Name != nil {
		if _, err := NewName(*req.Name); err != nil {
			fields = append(fields, domain.FieldError{Field: "name", Message: fmt.Sprintf("must be 1-%d characters", maxNameLen)})
		}
	}
	if req.Slug != nil {
		if _, err := NewSlug(*req.Slug); err != nil {
			fields = append(fields, domain.FieldError{Field: "slug", Message: "must be 1-50 characters of [a-z0-9-]"})
		}
	}
	if req.Timezone != nil {
		if err := validTimezone(*req.Timezone); err != nil {
			fields = append(fields, domain.FieldError{Field: "timezone", Message: "must be a valid IANA timezone"})
		}
	}

	if len(fields) > 0 {
		return domain.NewValidationError(fields...)
	}
	return nil
}

// ValidateSettingKey checks a setting key (1-100 characters).
func ValidateSettingKey(key string) error {
	n := utf8.RuneCountInString(key)
	if n == 0 || n > maxKeyLen {
		return fmt.Errorf("setting key must be 1-%d characters: %w", maxKeyLen, domain.ErrValidation)
	}
	return nil
}

func validTimezone(tz string) error {
	if tz == "" {
		return fmt.Errorf("timezone is empty: %w", domain.ErrValidation)
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", tz, domain.ErrValidation)
	}
	return nil
}
