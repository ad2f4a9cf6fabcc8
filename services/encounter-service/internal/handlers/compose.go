package handlers

import (
	"sort"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/composer"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
)

type medicineInput struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage"`
	Quantity     int      `json:"quantity"`
	DurationDays int      `json:"durationDays"`
	Timing       []string `json:"timing"`
}

type injectionInput struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Quantity int    `json:"quantity"`
	Schedule string `json:"schedule"`
	Notes    string `json:"notes"`
}

// composeRequest is the portal's prescription form. Items are referenced by catalog name.
type composeRequest struct {
	DoctorID         string           `json:"doctorId"`
	PatientID        string           `json:"patientId"`
	PatientName      string           `json:"patientName"`
	Medicines        []medicineInput  `json:"medicines"`
	Injections       []injectionInput `json:"injections"`
	DietPlan         string           `json:"dietPlan"`
	RecommendedTests []string         `json:"recommendedTests"`
}

// apply replays the form onto c through the composer's line operations.
func (req composeRequest) apply(c *composer.Composer) error {
	if err := addMedicines(c, req.Medicines); err != nil {
		return err
	}
	if err := addInjections(c, req.Injections); err != nil {
		return err
	}
	c.SetDietPlan(req.DietPlan)
	seen := make(map[string]bool)
	for _, name := range req.RecommendedTests {
		canonical, ok := model.CanonicalTest(name)
		if ok && seen[canonical] {
			continue
		}
		seen[canonical] = true
		if err := c.ToggleTest(name); err != nil {
			return err
		}
	}
	return nil
}

type lineRef struct {
	Kind  composer.LineKind `json:"kind"`
	Index int               `json:"index"`
}

type timingToggle struct {
	Index int    `json:"index"`
	Slot  string `json:"slot"`
}

// editRequest changes a stored prescription in place. Indexes refer to the stored lines.
type editRequest struct {
	ToggleTiming  []timingToggle   `json:"toggleTiming"`
	Remove        []lineRef        `json:"remove"`
	AddMedicines  []medicineInput  `json:"addMedicines"`
	AddInjections []injectionInput `json:"addInjections"`
	DietPlan      *string          `json:"dietPlan"`
	ToggleTests   []string         `json:"toggleTests"`
}

// apply runs timing toggles first, then removals from the highest index down so earlier
// indexes stay valid, then additions.
func (req editRequest) apply(c *composer.Composer) error {
	for _, tt := range req.ToggleTiming {
		if err := c.ToggleTiming(tt.Index, tt.Slot); err != nil {
			return err
		}
	}
	remove := append([]lineRef(nil), req.Remove...)
	sort.SliceStable(remove, func(i, j int) bool { return remove[i].Index > remove[j].Index })
	done := make(map[lineRef]bool)
	for _, ref := range remove {
		if done[ref] {
			continue
		}
		done[ref] = true
		if err := c.RemoveLine(ref.Kind, ref.Index); err != nil {
			return err
		}
	}
	if err := addMedicines(c, req.AddMedicines); err != nil {
		return err
	}
	if err := addInjections(c, req.AddInjections); err != nil {
		return err
	}
	if req.DietPlan != nil {
		c.SetDietPlan(*req.DietPlan)
	}
	for _, name := range req.ToggleTests {
		if err := c.ToggleTest(name); err != nil {
			return err
		}
	}
	return nil
}

func addMedicines(c *composer.Composer, inputs []medicineInput) error {
	for _, in := range inputs {
		item, ok := c.FindMedicine(in.Name)
		if !ok {
			return clinicerr.Validationf("medicines", "%q is not in the medicine catalog", in.Name)
		}
		added, err := c.AddMedicine(item)
		if err != nil {
			return err
		}
		if !added {
			continue
		}
		if err := setFields(c, composer.KindMedicine, c.MedicineCount()-1, map[string]string{
			"dosage":       in.Dosage,
			"quantity":     positive(in.Quantity),
			"durationDays": positive(in.DurationDays),
			"timing":       strings.Join(in.Timing, ","),
		}); err != nil {
			return err
		}
	}
	return nil
}

func addInjections(c *composer.Composer, inputs []injectionInput) error {
	for _, in := range inputs {
		item, ok := c.FindInjection(in.Name)
		if !ok {
			return clinicerr.Validationf("injections", "%q is not in the injection catalog", in.Name)
		}
		if _, err := c.AddInjection(item); err != nil {
			return err
		}
		if err := setFields(c, composer.KindInjection, c.InjectionCount()-1, map[string]string{
			"dosage":   in.Dosage,
			"quantity": positive(in.Quantity),
			"schedule": in.Schedule,
			"notes":    in.Notes,
		}); err != nil {
			return err
		}
	}
	return nil
}

// setFields applies the non-empty values; empty ones keep the catalog defaults.
func setFields(c *composer.Composer, kind composer.LineKind, index int, fields map[string]string) error {
	for _, field := range []string{"dosage", "quantity", "durationDays", "timing", "schedule", "notes"} {
		value, ok := fields[field]
		if !ok || value == "" {
			continue
		}
		if err := c.UpdateLine(kind, index, field, value); err != nil {
			return err
		}
	}
	return nil
}

func positive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
