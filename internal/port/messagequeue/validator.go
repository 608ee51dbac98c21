package messagequeue

import (
	"encoding/json"
	"fmt"

	"github.com/atriumlabs/atrium/internal/domain/event"
)

// Validate checks whether data is valid JSON conforming to the payload
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	// Map subject to payload struct for structural validation.
	var target any
	switch subject {
	case SubjectTenantCreated:
		target = &event.TenantCreated{}
	case SubjectTenantUpdated:
		target = &event.TenantUpdated{}
	case SubjectTenantDeleted:
		target = &event.TenantDeleted{}
	case SubjectTenantSettingUpdated:
		target = &event.TenantSettingUpdated{}
	case SubjectTenantSettingDeleted:
		target = &event.TenantSettingDeleted{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
