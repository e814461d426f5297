package domain

import "strings"

// validSource returns true if the provenance marker is known.
// Prefixed markers (e.g. "env:CI", "config:.npmrc") are accepted.
func validSource(src string) bool {
	if ValidSources[src] {
		return true
	}
	for base := range ValidSources {
		if strings.HasPrefix(src, base+":") {
			return true
		}
	}
	return false
}

// ValidateDescriptor checks a ServiceDescriptor before it enters the
// embedding or orchestration paths. Descriptors considered for graph
// inclusion must declare at least one capability.
func ValidateDescriptor(d ServiceDescriptor) error {
	if strings.TrimSpace(d.ID) == "" {
		return NewValidationError(d.ID, "id", ErrEmptyID)
	}
	if strings.TrimSpace(d.Name) == "" {
		return NewValidationError(d.ID, "name", ErrEmptyName)
	}
	if strings.TrimSpace(d.Type) == "" {
		return NewValidationError(d.ID, "type", ErrEmptyType)
	}
	if len(d.Capabilities) == 0 {
		return NewValidationError(d.ID, "capabilities", ErrNoCapabilities)
	}
	if d.Source != "" && !validSource(d.Source) {
		return NewValidationError(d.ID, "source", ErrUnknownSource)
	}
	return nil
}

// ValidateBatch validates every descriptor in a discovery batch and
// enforces ID uniqueness. It returns the first violation encountered.
func ValidateBatch(batch []ServiceDescriptor) error {
	seen := make(map[string]bool, len(batch))
	for _, d := range batch {
		if err := ValidateDescriptor(d); err != nil {
			return err
		}
		if seen[d.ID] {
			return NewValidationError(d.ID, "id", ErrDuplicateID)
		}
		seen[d.ID] = true
	}
	return nil
}
