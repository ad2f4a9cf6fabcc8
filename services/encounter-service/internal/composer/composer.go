// Package composer assembles a prescription draft from catalog items plus the doctor's clinical
// annotations.
package composer

import (
	"context"
	"strings"
	"sync"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores"
)

type LineKind string

const (
	KindMedicine  LineKind = "medicine"
	KindInjection LineKind = "injection"
)

// pools is the catalog split by batch prefix. It is immutable once built and shared between a
// composer and its forks.
type pools struct {
	medicines  []model.CatalogItem
	injections []model.CatalogItem
}

// Composer is not safe for concurrent use; Fork gives each request its own draft over the same
// catalog pools.
type Composer struct {
	catalog stores.Catalog

	poolMu sync.RWMutex
	pools  *pools

	medicines  []model.MedicineLine
	injections []model.InjectionLine
	dietPlan   string
	tests      []string
}

func New(catalog stores.Catalog) *Composer {
	return &Composer{catalog: catalog, pools: &pools{}}
}

// Load fetches the catalog and rebuilds both pools. Items whose batch code is neither "B…" nor
// "I…" are dropped.
func (c *Composer) Load(ctx context.Context) error {
	items, err := c.catalog.ListItems(ctx)
	if err != nil {
		return err
	}
	p := &pools{}
	for _, item := range items {
		switch item.Category() {
		case model.Medicine:
			p.medicines = append(p.medicines, item)
		case model.Injection:
			p.injections = append(p.injections, item)
		}
	}
	c.poolMu.Lock()
	c.pools = p
	c.poolMu.Unlock()
	return nil
}

// Fork returns an empty draft sharing the loaded pools.
func (c *Composer) Fork() *Composer {
	c.poolMu.RLock()
	defer c.poolMu.RUnlock()
	return &Composer{catalog: c.catalog, pools: c.pools}
}

func (c *Composer) current() *pools {
	c.poolMu.RLock()
	defer c.poolMu.RUnlock()
	return c.pools
}

func (c *Composer) Medicines() []model.CatalogItem {
	return append([]model.CatalogItem(nil), c.current().medicines...)
}

func (c *Composer) Injections() []model.CatalogItem {
	return append([]model.CatalogItem(nil), c.current().injections...)
}

func (c *Composer) SearchMedicines(q string) []model.CatalogItem {
	return search(c.current().medicines, q)
}

func (c *Composer) SearchInjections(q string) []model.CatalogItem {
	return search(c.current().injections, q)
}

func search(pool []model.CatalogItem, q string) []model.CatalogItem {
	q = strings.ToLower(strings.TrimSpace(q))
	var out []model.CatalogItem
	for _, item := range pool {
		if q == "" || strings.Contains(strings.ToLower(item.Name), q) {
			out = append(out, item)
		}
	}
	return out
}

func (c *Composer) FindMedicine(name string) (model.CatalogItem, bool) {
	return find(c.current().medicines, name)
}

func (c *Composer) FindInjection(name string) (model.CatalogItem, bool) {
	return find(c.current().injections, name)
}

func find(pool []model.CatalogItem, name string) (model.CatalogItem, bool) {
	name = strings.TrimSpace(name)
	for _, item := range pool {
		if strings.EqualFold(item.Name, name) {
			return item, true
		}
	}
	return model.CatalogItem{}, false
}

// AddMedicine appends a medicine line. Adding a name already on the draft is a no-op and
// reports false.
func (c *Composer) AddMedicine(item model.CatalogItem) (bool, error) {
	if item.Category() != model.Medicine {
		return false, clinicerr.Validationf("batch", "%s (batch %q) is not a medicine", item.Name, item.Batch)
	}
	for _, line := range c.medicines {
		if strings.EqualFold(line.Name, item.Name) {
			return false, nil
		}
	}
	c.medicines = append(c.medicines, model.MedicineLine{
		Name:     item.Name,
		Batch:    item.Batch,
		Dosage:   item.Dosage,
		Quantity: 1,
	})
	return true, nil
}

// AddInjection appends an injection line. The same injection may appear more than once with
// different schedules.
func (c *Composer) AddInjection(item model.CatalogItem) (bool, error) {
	if item.Category() != model.Injection {
		return false, clinicerr.Validationf("batch", "%s (batch %q) is not an injection", item.Name, item.Batch)
	}
	c.injections = append(c.injections, model.InjectionLine{
		Name:     item.Name,
		Batch:    item.Batch,
		Dosage:   item.Dosage,
		Quantity: 1,
	})
	return true, nil
}

// MedicineCount and InjectionCount report the number of lines on the draft.
func (c *Composer) MedicineCount() int { return len(c.medicines) }

func (c *Composer) InjectionCount() int { return len(c.injections) }

func (c *Composer) RemoveLine(kind LineKind, index int) error {
	switch kind {
	case KindMedicine:
		if err := checkIndex(kind, index, len(c.medicines)); err != nil {
			return err
		}
		c.medicines = append(c.medicines[:index], c.medicines[index+1:]...)
	case KindInjection:
		if err := checkIndex(kind, index, len(c.injections)); err != nil {
			return err
		}
		c.injections = append(c.injections[:index], c.injections[index+1:]...)
	default:
		return unknownKind(kind)
	}
	return nil
}

func (c *Composer) SetDietPlan(text string) {
	c.dietPlan = text
}

// ToggleTest adds or removes a recommended test from the fixed catalog.
func (c *Composer) ToggleTest(name string) error {
	canonical, ok := model.CanonicalTest(name)
	if !ok {
		return clinicerr.Validationf("recommendedTests", "unknown test %q", name)
	}
	for i, t := range c.tests {
		if t == canonical {
			c.tests = append(c.tests[:i], c.tests[i+1:]...)
			return nil
		}
	}
	c.tests = append(c.tests, canonical)
	return nil
}

// LoadPrescription replaces the draft with the lines of an existing prescription. p is copied;
// later edits never reach it.
func (c *Composer) LoadPrescription(p model.Prescription) {
	c.medicines = append([]model.MedicineLine(nil), p.Medicines...)
	for i := range c.medicines {
		c.medicines[i].Timing = append([]model.TimingSlot(nil), c.medicines[i].Timing...)
	}
	c.injections = append([]model.InjectionLine(nil), p.Injections...)
	c.dietPlan = p.DietPlan
	c.tests = append([]string(nil), p.RecommendedTests...)
}

type DraftHeader struct {
	AppointmentID string
	DoctorID      string
	PatientID     string
	PatientName   string
}

// ToDraft produces the payload for the prescription store. An empty prescription is rejected.
func (c *Composer) ToDraft(h DraftHeader) (model.Prescription, error) {
	p := model.Prescription{
		AppointmentID:    h.AppointmentID,
		DoctorID:         h.DoctorID,
		PatientID:        h.PatientID,
		PatientName:      h.PatientName,
		Medicines:        append([]model.MedicineLine{}, c.medicines...),
		Injections:       append([]model.InjectionLine{}, c.injections...),
		DietPlan:         strings.TrimSpace(c.dietPlan),
		RecommendedTests: append([]string{}, c.tests...),
		Status:           model.PrescriptionActive,
	}
	for i := range p.Medicines {
		p.Medicines[i].Timing = append([]model.TimingSlot{}, p.Medicines[i].Timing...)
	}
	if !p.HasContent() {
		return model.Prescription{}, EmptyPrescription()
	}
	return p, nil
}

// EmptyPrescription is the validation error for a draft with no medicines, injections, diet plan
// or tests.
func EmptyPrescription() *clinicerr.Error {
	return clinicerr.Validationf("prescription", "add at least one medicine, injection, diet plan or test")
}

func checkIndex(kind LineKind, index, n int) error {
	if index < 0 || index >= n {
		return clinicerr.Validationf("index", "no %s line at index %d", kind, index)
	}
	return nil
}

func unknownKind(kind LineKind) error {
	return clinicerr.Validationf("kind", "unknown line kind %q", kind)
}
