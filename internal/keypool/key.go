package keypool

import (
	"regexp"
	"strconv"
)

// Kind identifies the provider API family a key belongs to.
type Kind string

const (
	// KindOpenAI covers OpenAI and every OpenAI-compatible endpoint.
	KindOpenAI Kind = "openai"
	// KindGoogle covers the Google Generative API.
	KindGoogle Kind = "google"
)

// Status is the lifecycle state of a configured key.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// Key is a read-only snapshot of one configured credential. The pool never
// mutates these records; temporary exclusion after rate limiting lives in
// the Lockout overlay instead.
type Key struct {
	ID         string   `json:"id"`
	Secret     string   `json:"key"`
	Kind       Kind     `json:"keyModel"`
	BaseURL    string   `json:"baseUrl,omitempty"`
	ChatModels []string `json:"chatModels"`
	UserRoles  []string `json:"userRoles"`
	Remark     string   `json:"remark,omitempty"`
	Status     Status   `json:"status"`
}

var (
	minTokensPattern = regexp.MustCompile(`MIN_TOKENS=(\d+)`)
	maxTokensPattern = regexp.MustCompile(`MAX_TOKENS=(\d+)`)
)

// TokenBounds parses the optional MIN_TOKENS/MAX_TOKENS constraints from the
// key's free-form remark. A missing bound is returned as zero.
func (k Key) TokenBounds() (min, max int) {
	if m := minTokensPattern.FindStringSubmatch(k.Remark); len(m) > 1 {
		min, _ = strconv.Atoi(m[1])
	}
	if m := maxTokensPattern.FindStringSubmatch(k.Remark); len(m) > 1 {
		max, _ = strconv.Atoi(m[1])
	}
	return min, max
}

// SupportsModel reports whether the key's allowed model list contains model.
func (k Key) SupportsModel(model string) bool {
	for _, m := range k.ChatModels {
		if m == model {
			return true
		}
	}
	return false
}

// AllowsAnyRole reports whether the key's allowed roles intersect roles.
// An empty list on either side means unrestricted.
func (k Key) AllowsAnyRole(roles []string) bool {
	if len(k.UserRoles) == 0 || len(roles) == 0 {
		return true
	}
	for _, allowed := range k.UserRoles {
		for _, r := range roles {
			if allowed == r {
				return true
			}
		}
	}
	return false
}
