package pharmacy

import (
	"context"
	"strings"

	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

// Refusal text returned in place of the real instructions whenever an allergy
// conflict is detected. The raw prescription instructions are never surfaced
// alongside a conflict.
const (
	RefusalInstructions = "DO NOT USE. Allergy detected."
	RefusalRestrictions = "ALLERGY CONFLICT."

	defaultInstructions = "No specific prescription found."
	defaultRestrictions = "None listed."
)

// SafetyStatus is the derived result of checking one patient against one
// medication. It is computed per request and never persisted.
type SafetyStatus struct {
	PatientName       string `json:"user_name"`
	PatientNameHebrew string `json:"user_name_hebrew"`
	Medication        string `json:"medication"`
	AuthorizedByRx    bool   `json:"authorized_by_rx"`
	HasPrescription   bool   `json:"has_prescription"`
	RequiresRx        bool   `json:"requires_prescription"`
	UsageInstructions string `json:"patient_usage_instructions"`
	Restrictions      string `json:"medication_restrictions"`
	AllergyConflict   string `json:"allergy_conflict,omitempty"`
	StockAvailable    int    `json:"stock_available"`
	ActiveIngredients string `json:"active_ingredients"`
}

// SafetyResolver computes authorization and allergy-conflict status against a
// RecordStore. It performs no I/O beyond store lookups.
type SafetyResolver struct {
	store  RecordStore
	logger *logging.Logger
}

func NewSafetyResolver(store RecordStore, logger *logging.Logger) *SafetyResolver {
	if store == nil {
		panic("pharmacy: record store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SafetyResolver{store: store, logger: logger}
}

// ResolveStatus checks whether a patient may take a medication. It returns
// ErrPatientNotFound / ErrMedicationNotFound when either record is absent;
// those are terminal for the turn and must not be retried with the same input.
func (r *SafetyResolver) ResolveStatus(ctx context.Context, patientID, medicationName string) (*SafetyStatus, error) {
	patientID = strings.TrimSpace(patientID)
	requestedName := strings.TrimSpace(medicationName)

	patient, err := r.store.Patient(ctx, patientID)
	if err != nil {
		r.logger.Warn("safety check failed: patient lookup", "patient_id", patientID, "error", err)
		return nil, err
	}
	med, err := r.store.Medication(ctx, requestedName)
	if err != nil {
		r.logger.Warn("safety check failed: medication lookup", "medication", requestedName, "error", err)
		return nil, err
	}

	rx := patient.PrescriptionFor(med.Name)
	authorized := rx != nil || !med.RequiresRx

	conflict := allergyConflict(patient, med)

	// Echo the name back in the language the caller used.
	displayName := med.Name
	if requestedName == med.NameHebrew {
		displayName = med.NameHebrew
	}

	status := &SafetyStatus{
		PatientName:       patient.Name,
		PatientNameHebrew: patient.NameHebrew,
		Medication:        displayName,
		AuthorizedByRx:    authorized,
		HasPrescription:   rx != nil,
		RequiresRx:        med.RequiresRx,
		UsageInstructions: defaultInstructions,
		Restrictions:      med.Restrictions,
		AllergyConflict:   conflict,
		StockAvailable:    med.StockLevel,
		ActiveIngredients: med.ActiveIngredients,
	}
	if status.PatientNameHebrew == "" {
		status.PatientNameHebrew = patient.Name
	}
	if status.Restrictions == "" {
		status.Restrictions = defaultRestrictions
	}
	if rx != nil {
		status.UsageInstructions = rx.Instructions
	}

	// The conflict dominates display content but never authorization status.
	if conflict != "" {
		r.logger.Warn("allergy conflict detected",
			"patient_id", patientID,
			"medication", med.Name,
			"conflict", conflict,
		)
		status.UsageInstructions = RefusalInstructions
		status.Restrictions = RefusalRestrictions
	}

	return status, nil
}

// allergyConflict applies the fixed precedence: drug-class equality first,
// then ingredient substring. Allergies are checked in stored order and the
// first match wins.
func allergyConflict(patient *PatientRecord, med *MedicationRecord) string {
	drugClass := strings.ToLower(med.DrugClass)
	ingredients := strings.ToLower(med.ActiveIngredients)

	for _, allergy := range patient.Allergies {
		if strings.ToLower(allergy) == drugClass {
			return "Patient is allergic to " + med.DrugClass + "."
		}
	}
	for _, allergy := range patient.Allergies {
		lowered := strings.ToLower(allergy)
		if lowered != "" && strings.Contains(ingredients, lowered) {
			return "Patient is allergic to active ingredient " + lowered + "."
		}
	}
	return ""
}

// FindAlternatives lists medications whose active-ingredient text contains the
// queried ingredient, excluding the named medication and any excluded drug
// classes. Empty results return ErrNoAlternatives, which is reported to the
// caller rather than retried.
func (r *SafetyResolver) FindAlternatives(ctx context.Context, activeIngredient, excludeMedication string, excludeDrugClasses []string) ([]string, error) {
	ingredient := strings.ToLower(strings.TrimSpace(activeIngredient))
	excluded := strings.ToLower(strings.TrimSpace(excludeMedication))
	excludedClasses := make(map[string]struct{}, len(excludeDrugClasses))
	for _, c := range excludeDrugClasses {
		excludedClasses[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	catalog, err := r.store.Medications(ctx)
	if err != nil {
		return nil, err
	}

	var alternatives []string
	for _, m := range catalog {
		if !strings.Contains(strings.ToLower(m.ActiveIngredients), ingredient) {
			continue
		}
		if strings.ToLower(m.Name) == excluded {
			continue
		}
		if _, skip := excludedClasses[strings.ToLower(m.DrugClass)]; skip {
			continue
		}
		alternatives = append(alternatives, m.Name)
	}

	if len(alternatives) == 0 {
		r.logger.Info("no alternatives found", "active_ingredient", activeIngredient)
		return nil, ErrNoAlternatives
	}
	return alternatives, nil
}
