package model

import "strings"

type Category int

const (
	Unclassified Category = iota
	Medicine
	Injection
)

func (c Category) String() string {
	switch c {
	case Medicine:
		return "medicine"
	case Injection:
		return "injection"
	default:
		return "unclassified"
	}
}

type CatalogItem struct {
	Name   string  `json:"name"`
	Batch  string  `json:"batch"`
	Dosage string  `json:"dosage"`
	Stock  int     `json:"stock"`
	Price  float64 `json:"price"`
	Expiry string  `json:"expiry"`
}

func (i CatalogItem) Category() Category {
	return Classify(i.Batch)
}

// Classify derives the catalog category from the batch code prefix: "B…" medicines,
// "I…" injections, anything else is in neither pool.
func Classify(batch string) Category {
	batch = strings.TrimSpace(batch)
	switch {
	case strings.HasPrefix(batch, "B"):
		return Medicine
	case strings.HasPrefix(batch, "I"):
		return Injection
	default:
		return Unclassified
	}
}
