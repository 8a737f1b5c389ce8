package pharmacy

import (
	"context"
	"sort"
	"strings"
)

// MemoryStore is an in-memory RecordStore used in development and tests.
type MemoryStore struct {
	patients    map[string]PatientRecord
	medications map[string]MedicationRecord
}

// NewMemoryStore builds a store from the given records. Medications are keyed
// by their canonical English name.
func NewMemoryStore(patients []PatientRecord, medications []MedicationRecord) *MemoryStore {
	s := &MemoryStore{
		patients:    make(map[string]PatientRecord, len(patients)),
		medications: make(map[string]MedicationRecord, len(medications)),
	}
	for _, p := range patients {
		s.patients[p.ID] = p
	}
	for _, m := range medications {
		s.medications[CanonicalName(m.Name)] = m
	}
	return s
}

// NewSeededStore returns a store populated with the demo pharmacy catalog.
func NewSeededStore() *MemoryStore {
	return NewMemoryStore(seedPatients(), seedMedications())
}

func (s *MemoryStore) Patient(_ context.Context, id string) (*PatientRecord, error) {
	p, ok := s.patients[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Medication(_ context.Context, name string) (*MedicationRecord, error) {
	if m, ok := s.medications[CanonicalName(name)]; ok {
		return &m, nil
	}
	// Hebrew names have no useful casing; match exactly after trimming.
	trimmed := strings.TrimSpace(name)
	for _, m := range s.medications {
		if strings.TrimSpace(m.NameHebrew) == trimmed {
			return &m, nil
		}
	}
	return nil, ErrMedicationNotFound
}

func (s *MemoryStore) Medications(_ context.Context) ([]MedicationRecord, error) {
	out := make([]MedicationRecord, 0, len(s.medications))
	for _, m := range s.medications {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// HasPatient reports whether the given id belongs to a known patient. The chat
// handler uses it to inject authenticated context for patient sessions.
func (s *MemoryStore) HasPatient(ctx context.Context, id string) bool {
	_, err := s.Patient(ctx, id)
	return err == nil
}

func seedPatients() []PatientRecord {
	return []PatientRecord{
		{
			ID: "312456789", Name: "Hadar", NameHebrew: "הדר",
			Allergies: []string{"Penicillin"},
			Prescriptions: []Prescription{
				{Medication: "Lisinopril", Instructions: "Take 10mg once daily in the morning."},
			},
			History: "History of hypertension.",
		},
		{
			ID: "058123456", Name: "Bob Levy", NameHebrew: "בוב לוי",
			Allergies: []string{"Ibuprofen"},
			Prescriptions: []Prescription{
				{Medication: "Ibuprofen", Instructions: "Take 200mg as needed for pain."},
			},
			History: "Chronic headaches.",
		},
		{
			ID: "123123123", Name: "Maya Avni", NameHebrew: "מאיה אבני",
			Allergies: []string{"Methylphenidate"},
			Prescriptions: []Prescription{
				{Medication: "Ritalin", Instructions: "Take 10mg twice daily for ADHD."},
			},
			History: "ADHD.",
		},
		{
			ID: "204567891", Name: "Alice Cohen", NameHebrew: "אליס כהן",
			Prescriptions: []Prescription{
				{Medication: "Metformin", Instructions: "Take 850mg twice daily with meals."},
			},
			History: "Type 2 Diabetes.",
		},
		{
			ID: "300987654", Name: "Dana Silver", NameHebrew: "דנה סילבר",
			History: "No known issues.",
		},
		{
			ID: "111222333", Name: "Levi Ackermann", NameHebrew: "לוי אקרמן",
			Prescriptions: []Prescription{
				{Medication: "Amoxicillin", Instructions: "Take 1 capsule twice daily for 7 days."},
			},
			History: "Occasional ear infections.",
		},
		{
			ID: "444555666", Name: "Mikasa Arlert", NameHebrew: "מיקאסה ארלרט",
			Allergies: []string{"Penicillin"},
			Prescriptions: []Prescription{
				{Medication: "Lisinopril", Instructions: "Take 5mg once daily."},
			},
			History: "Mild hypertension.",
		},
		{
			ID: "777888999", Name: "Eren Yeager", NameHebrew: "ארן ייגר",
			Prescriptions: []Prescription{
				{Medication: "Metformin", Instructions: "Take 500mg daily."},
			},
			History: "Pre-diabetic monitoring.",
		},
		{
			ID: "121212121", Name: "Armin Arlert", NameHebrew: "ארמין ארלרט",
			Allergies: []string{"Ibuprofen"},
			History:   "ADHD; history of stomach ulcers.",
		},
		{
			ID: "989898989", Name: "Jean Kirschtein", NameHebrew: "ז'אן קירשטיין",
			History: "No significant medical history.",
		},
	}
}

func seedMedications() []MedicationRecord {
	return []MedicationRecord{
		{
			SKU: "MED-AMX-500", Name: "Amoxicillin", NameHebrew: "אמוקסיצילין",
			DrugClass: "Penicillin", ActiveIngredients: "Amoxicillin Trihydrate",
			RequiresRx: true, StockLevel: 12,
			Restrictions: "Finish the full course. Notify doctor of any rash.",
		},
		{
			SKU: "MED-IBU-200", Name: "Ibuprofen", NameHebrew: "איבופרופן",
			DrugClass: "NSAIDs", ActiveIngredients: "Ibuprofen",
			RequiresRx: false, StockLevel: 200,
			Restrictions: "Avoid taking on an empty stomach. Do not exceed 1200mg/day.",
		},
		{
			SKU: "MED-ADV-200", Name: "Advil", NameHebrew: "אדוויל",
			DrugClass: "NSAIDs", ActiveIngredients: "Ibuprofen",
			RequiresRx: false, StockLevel: 50,
			Restrictions: "Avoid taking on an empty stomach. Do not exceed 1200mg/day.",
		},
		{
			SKU: "MED-RIT-10", Name: "Ritalin", NameHebrew: "ריטלין",
			DrugClass: "Stimulants", ActiveIngredients: "Methylphenidate",
			RequiresRx: true, StockLevel: 5,
			Restrictions: "Controlled substance. Potential for abuse. Monitor heart rate.",
		},
		{
			SKU: "MED-LIS-10", Name: "Lisinopril", NameHebrew: "ליסינופריל",
			DrugClass: "ACE Inhibitors", ActiveIngredients: "Lisinopril",
			RequiresRx: true, StockLevel: 50,
			Restrictions: "May cause a persistent dry cough. Monitor blood pressure.",
		},
		{
			SKU: "MED-MET-850", Name: "Metformin", NameHebrew: "מטפורמין",
			DrugClass: "Biguanides", ActiveIngredients: "Metformin Hydrochloride",
			RequiresRx: true, StockLevel: 80,
			Restrictions: "Take with meals. Avoid excessive alcohol consumption.",
		},
	}
}
