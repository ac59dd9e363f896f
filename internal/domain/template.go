package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z][a-zA-Z0-9_]*)\}`)

// MessageTemplate is a tenant-scoped notification body with {placeholder}
// slots. Required keys are derived by parsing, not declared separately.
type MessageTemplate struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	TenantID  string `gorm:"type:varchar(36);not null;index"`
	Name      string `gorm:"type:varchar(128);not null"`
	Body      string `gorm:"type:text;not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MessageTemplate) TableName() string { return "message_templates" }

// RequiredKeys lists every distinct placeholder in the body.
func (t *MessageTemplate) RequiredKeys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.Body, -1) {
		key := match[1]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Render substitutes placeholders from vars. Missing keys are a hard
// validation error at enqueue time, not a silent empty substitution.
func (t *MessageTemplate) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, key := range t.RequiredKeys() {
		if _, ok := vars[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: template %q missing variables: %s", ErrValidation, t.Name, strings.Join(missing, ", "))
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(t.Body, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[key]
	})
	return rendered, nil
}
