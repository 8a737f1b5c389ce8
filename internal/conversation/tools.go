package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rxassist/pharmacy-assistant/internal/pharmacy"
	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

const (
	ToolGetPatientDetails = "get_patient_details"
	ToolGetMedicationInfo = "get_medication_info"
	ToolCheckUserStatus   = "check_user_status"
	ToolGetAlternatives   = "get_alternatives"
)

// PatientDetails is the get_patient_details result payload.
type PatientDetails struct {
	Name                 string   `json:"name"`
	History              string   `json:"history"`
	CurrentPrescriptions []string `json:"current_prescriptions"`
	Allergies            []string `json:"allergies"`
}

// Alternatives is the get_alternatives result payload.
type Alternatives struct {
	Alternatives []string `json:"alternatives"`
}

// NewPharmacyRegistry wires the four pharmacy tools onto a fresh registry.
func NewPharmacyRegistry(resolver *pharmacy.SafetyResolver, store pharmacy.RecordStore, logger *logging.Logger) *Registry {
	if resolver == nil {
		panic("conversation: safety resolver cannot be nil")
	}
	if store == nil {
		panic("conversation: record store cannot be nil")
	}

	r := NewRegistry(logger)

	r.Register(ToolSpec{
		Name:        ToolGetPatientDetails,
		Description: "Retrieve patient name, medical history, current prescriptions, and known allergies. Use this when you need to understand a patient's medical background.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "9-digit patient identifier",
				},
			},
			"required":             []string{"user_id"},
			"additionalProperties": false,
		},
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		patient, err := store.Patient(ctx, args.UserID)
		if errors.Is(err, pharmacy.ErrPatientNotFound) {
			return nil, errors.New("User not found.")
		}
		if err != nil {
			return nil, err
		}
		prescriptions := make([]string, 0, len(patient.Prescriptions))
		for _, rx := range patient.Prescriptions {
			prescriptions = append(prescriptions, rx.Medication)
		}
		allergies := patient.Allergies
		if allergies == nil {
			allergies = []string{}
		}
		history := patient.History
		if history == "" {
			history = "No medical history available."
		}
		return PatientDetails{
			Name:                 patient.Name,
			History:              history,
			CurrentPrescriptions: prescriptions,
			Allergies:            allergies,
		}, nil
	})

	r.Register(ToolSpec{
		Name:        ToolGetMedicationInfo,
		Description: "Get factual information about a medication including active ingredients, drug class, stock level, and general restrictions. Does NOT include patient-specific authorization.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Medication name (e.g., 'Ibuprofen', 'Advil')",
				},
			},
			"required":             []string{"name"},
			"additionalProperties": false,
		},
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		med, err := store.Medication(ctx, args.Name)
		if errors.Is(err, pharmacy.ErrMedicationNotFound) {
			return nil, errors.New("Medication not found.")
		}
		if err != nil {
			return nil, err
		}
		return med, nil
	})

	r.Register(ToolSpec{
		Name:        ToolCheckUserStatus,
		Description: "Check if a specific patient is authorized to take a medication. Verifies prescription status, checks for allergy conflicts, and provides patient-specific usage instructions. This is the PRIMARY safety check tool.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "9-digit patient identifier",
				},
				"med_name": map[string]any{
					"type":        "string",
					"description": "Medication name to check",
				},
			},
			"required":             []string{"user_id", "med_name"},
			"additionalProperties": false,
		},
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			UserID  string `json:"user_id"`
			MedName string `json:"med_name"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		status, err := resolver.ResolveStatus(ctx, args.UserID, args.MedName)
		if errors.Is(err, pharmacy.ErrPatientNotFound) {
			return nil, fmt.Errorf("Patient ID %s not found.", args.UserID)
		}
		if errors.Is(err, pharmacy.ErrMedicationNotFound) {
			return nil, fmt.Errorf("Medication '%s' not found.", args.MedName)
		}
		if err != nil {
			return nil, err
		}
		return status, nil
	})

	r.Register(ToolSpec{
		Name:        ToolGetAlternatives,
		Description: "Find alternative medications with the same active ingredient. Use when patient cannot take current medication due to allergies, stock issues, or preference. After getting alternatives, you should call check_user_status on the suggested alternative.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"active_ingredient": map[string]any{
					"type":        "string",
					"description": "Active ingredient to search for (e.g., 'Ibuprofen', 'Methylphenidate')",
				},
				"current_med_name": map[string]any{
					"type":        "string",
					"description": "Current medication name to exclude from results",
				},
				"exclude_drug_classes": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "List of drug classes to filter out (e.g., ['Penicillin', 'NSAIDs'])",
				},
			},
			"required":             []string{"active_ingredient"},
			"additionalProperties": false,
		},
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			ActiveIngredient   string   `json:"active_ingredient"`
			CurrentMedName     string   `json:"current_med_name"`
			ExcludeDrugClasses []string `json:"exclude_drug_classes"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		alternatives, err := resolver.FindAlternatives(ctx, args.ActiveIngredient, args.CurrentMedName, args.ExcludeDrugClasses)
		if errors.Is(err, pharmacy.ErrNoAlternatives) {
			return nil, fmt.Errorf("No alternatives found with active ingredient: %s", args.ActiveIngredient)
		}
		if err != nil {
			return nil, err
		}
		return Alternatives{Alternatives: alternatives}, nil
	})

	return r
}
