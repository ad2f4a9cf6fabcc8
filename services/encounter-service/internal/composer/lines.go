package composer

import (
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/model"
)

// UpdateLine sets one field of a line. Numeric fields must parse as integers; nothing else is
// checked here.
func (c *Composer) UpdateLine(kind LineKind, index int, field, value string) error {
	switch kind {
	case KindMedicine:
		if err := checkIndex(kind, index, len(c.medicines)); err != nil {
			return err
		}
		return updateMedicine(&c.medicines[index], field, value)
	case KindInjection:
		if err := checkIndex(kind, index, len(c.injections)); err != nil {
			return err
		}
		return updateInjection(&c.injections[index], field, value)
	default:
		return unknownKind(kind)
	}
}

func updateMedicine(line *model.MedicineLine, field, value string) error {
	switch field {
	case "dosage":
		line.Dosage = value
	case "quantity":
		n, err := atoi(field, value)
		if err != nil {
			return err
		}
		line.Quantity = n
	case "durationDays":
		n, err := atoi(field, value)
		if err != nil {
			return err
		}
		line.DurationDays = n
	case "timing":
		slots, err := parseTiming(value)
		if err != nil {
			return err
		}
		line.Timing = slots
	default:
		return clinicerr.Validationf("field", "medicine lines have no field %q", field)
	}
	return nil
}

func updateInjection(line *model.InjectionLine, field, value string) error {
	switch field {
	case "dosage":
		line.Dosage = value
	case "quantity":
		n, err := atoi(field, value)
		if err != nil {
			return err
		}
		line.Quantity = n
	case "schedule":
		line.Schedule = value
	case "notes":
		line.Notes = value
	default:
		return clinicerr.Validationf("field", "injection lines have no field %q", field)
	}
	return nil
}

// ToggleTiming adds slot to the medicine line at index, or removes it when already present.
func (c *Composer) ToggleTiming(index int, slot string) error {
	if err := checkIndex(KindMedicine, index, len(c.medicines)); err != nil {
		return err
	}
	s, ok := model.ParseTimingSlot(slot)
	if !ok {
		return clinicerr.Validationf("timing", "unknown timing slot %q", slot)
	}
	line := &c.medicines[index]
	for i, have := range line.Timing {
		if have == s {
			line.Timing = append(line.Timing[:i], line.Timing[i+1:]...)
			return nil
		}
	}
	line.Timing = append(line.Timing, s)
	return nil
}

func atoi(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, clinicerr.Validationf(field, "%s must be a whole number (got %q)", field, value)
	}
	return n, nil
}

// parseTiming reads a comma separated slot list, ignoring blanks and repeats.
func parseTiming(value string) ([]model.TimingSlot, error) {
	var slots []model.TimingSlot
	seen := make(map[model.TimingSlot]bool)
	for _, raw := range strings.Split(value, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		s, ok := model.ParseTimingSlot(raw)
		if !ok {
			return nil, clinicerr.Validationf("timing", "unknown timing slot %q", strings.TrimSpace(raw))
		}
		if !seen[s] {
			seen[s] = true
			slots = append(slots, s)
		}
	}
	return slots, nil
}
