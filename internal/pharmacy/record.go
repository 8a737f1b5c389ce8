package pharmacy

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// Typed lookup failures. Callers branch on these with errors.Is instead of
// probing result maps for an "error" key.
var (
	ErrPatientNotFound    = errors.New("pharmacy: patient not found")
	ErrMedicationNotFound = errors.New("pharmacy: medication not found")
	ErrNoAlternatives     = errors.New("pharmacy: no alternatives found")
)

// Prescription is one on-file prescription entry for a patient.
type Prescription struct {
	Medication   string `json:"medication" dynamodbav:"medication"`
	Instructions string `json:"instructions" dynamodbav:"instructions"`
}

// PatientRecord is a read-only patient row. Records are immutable within a
// request; the store owns them.
type PatientRecord struct {
	ID            string         `json:"id" dynamodbav:"id"`
	Name          string         `json:"name" dynamodbav:"name"`
	NameHebrew    string         `json:"name_hebrew" dynamodbav:"nameHebrew"`
	History       string         `json:"history" dynamodbav:"history"`
	Prescriptions []Prescription `json:"prescriptions" dynamodbav:"prescriptions"`
	Allergies     []string       `json:"allergies" dynamodbav:"allergies"`
}

// PrescriptionFor returns the prescription entry whose medication name exactly
// matches the canonical medication name, or nil.
func (p *PatientRecord) PrescriptionFor(medication string) *Prescription {
	for i := range p.Prescriptions {
		if p.Prescriptions[i].Medication == medication {
			return &p.Prescriptions[i]
		}
	}
	return nil
}

// MedicationRecord is a read-only catalog row.
type MedicationRecord struct {
	SKU               string `json:"sku" dynamodbav:"sku"`
	Name              string `json:"name" dynamodbav:"name"`
	NameHebrew        string `json:"name_hebrew" dynamodbav:"nameHebrew"`
	DrugClass         string `json:"drug_class" dynamodbav:"drugClass"`
	ActiveIngredients string `json:"active_ingredients" dynamodbav:"activeIngredients"`
	RequiresRx        bool   `json:"requires_rx" dynamodbav:"requiresRx"`
	StockLevel        int    `json:"stock_level" dynamodbav:"stockLevel"`
	Restrictions      string `json:"restrictions" dynamodbav:"restrictions"`
}

// RecordStore is the read-only lookup collaborator for patient and medication
// records. Medication lookups apply CanonicalName first and fall back to an
// exact Hebrew-name match; the English key wins when both could match.
type RecordStore interface {
	Patient(ctx context.Context, id string) (*PatientRecord, error)
	Medication(ctx context.Context, name string) (*MedicationRecord, error)
	Medications(ctx context.Context) ([]MedicationRecord, error)
}

// CanonicalName normalizes a medication name for catalog lookup: trim
// whitespace, then first rune upper and the rest lower. Applied once at the
// store boundary so callers never deal with casing.
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	runes := []rune(strings.ToLower(name))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
