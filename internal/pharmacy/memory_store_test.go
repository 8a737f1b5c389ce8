package pharmacy

import (
	"context"
	"errors"
	"testing"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"advil", "Advil"},
		{"ADVIL", "Advil"},
		{"  Ibuprofen  ", "Ibuprofen"},
		{"ritalin", "Ritalin"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CanonicalName(tt.in); got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryStore_MedicationLookup(t *testing.T) {
	store := NewSeededStore()
	ctx := context.Background()

	med, err := store.Medication(ctx, "aDvIl")
	if err != nil {
		t.Fatalf("case-insensitive lookup failed: %v", err)
	}
	if med.Name != "Advil" {
		t.Fatalf("expected Advil, got %s", med.Name)
	}

	med, err = store.Medication(ctx, " ריטלין ")
	if err != nil {
		t.Fatalf("Hebrew lookup failed: %v", err)
	}
	if med.Name != "Ritalin" {
		t.Fatalf("expected Ritalin via Hebrew name, got %s", med.Name)
	}

	if _, err := store.Medication(ctx, "Aspirin"); !errors.Is(err, ErrMedicationNotFound) {
		t.Fatalf("expected ErrMedicationNotFound, got %v", err)
	}
}

func TestMemoryStore_PatientLookup(t *testing.T) {
	store := NewSeededStore()
	ctx := context.Background()

	p, err := store.Patient(ctx, " 312456789 ")
	if err != nil {
		t.Fatalf("patient lookup failed: %v", err)
	}
	if p.Name != "Hadar" {
		t.Fatalf("expected Hadar, got %s", p.Name)
	}
	if rx := p.PrescriptionFor("Lisinopril"); rx == nil {
		t.Fatal("expected a Lisinopril prescription on file")
	}
	if rx := p.PrescriptionFor("lisinopril"); rx != nil {
		t.Fatal("prescription matching must be exact on the canonical name")
	}

	if _, err := store.Patient(ctx, "999999999"); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}

	if !store.HasPatient(ctx, "312456789") || store.HasPatient(ctx, "999999999") {
		t.Fatal("HasPatient should mirror Patient lookups")
	}
}

func TestMemoryStore_MedicationsSorted(t *testing.T) {
	store := NewSeededStore()
	meds, err := store.Medications(context.Background())
	if err != nil {
		t.Fatalf("catalog listing failed: %v", err)
	}
	if len(meds) != 6 {
		t.Fatalf("expected 6 seeded medications, got %d", len(meds))
	}
	for i := 1; i < len(meds); i++ {
		if meds[i-1].Name > meds[i].Name {
			t.Fatalf("catalog not sorted: %s before %s", meds[i-1].Name, meds[i].Name)
		}
	}
}
