package compliance

import (
	"strings"
	"unicode"
)

// Disclaimer templates, matched to the language of the answer.
const (
	disclaimerEnglish = "This information is for reference only. For medical advice, please consult your doctor or pharmacist."
	disclaimerHebrew  = "מידע זה למטרות התייחסות בלבד. לייעוץ רפואי, אנא היוועצו עם הרופא או הרוקח שלכם."
)

// DisclaimerConfig configures the disclaimer service.
type DisclaimerConfig struct {
	// Enabled controls whether disclaimers are appended.
	Enabled bool
	// CustomText overrides both language templates when set.
	CustomText string
}

// DefaultDisclaimerConfig returns sensible defaults.
func DefaultDisclaimerConfig() DisclaimerConfig {
	return DisclaimerConfig{Enabled: true}
}

// DisclaimerService ensures every final answer carries the reference-only
// disclaimer, in the language the answer was written in.
type DisclaimerService struct {
	config DisclaimerConfig
}

func NewDisclaimerService(config DisclaimerConfig) *DisclaimerService {
	return &DisclaimerService{config: config}
}

// DisclaimerFor returns the disclaimer text appropriate for the message.
func (s *DisclaimerService) DisclaimerFor(message string) string {
	if s.config.CustomText != "" {
		return s.config.CustomText
	}
	if containsHebrew(message) {
		return disclaimerHebrew
	}
	return disclaimerEnglish
}

// Ensure appends the disclaimer when the message lacks one. The second return
// reports whether anything was added, so streaming callers can forward just
// the suffix.
func (s *DisclaimerService) Ensure(message string) (string, bool) {
	if !s.config.Enabled {
		return message, false
	}
	if strings.TrimSpace(message) == "" {
		return message, false
	}

	disclaimer := s.DisclaimerFor(message)
	if strings.Contains(message, disclaimer) {
		return message, false
	}
	return message + "\n\n" + disclaimer, true
}

func containsHebrew(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hebrew, r) {
			return true
		}
	}
	return false
}
