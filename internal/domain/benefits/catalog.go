package benefits

import "sort"

// Type identifies a benefit programme.
type Type string

const (
	TypeHealth               Type = "HEALTH"
	TypeUnemploymentSubsidy  Type = "UNEMPLOYMENT_SUBSIDY"
	TypeDisabilitySubsidy    Type = "DISABILITY_SUBSIDY"
	TypePharmacyDiscount     Type = "PHARMACY_DISCOUNT"
	TypeOpticalDiscount      Type = "OPTICAL_DISCOUNT"
	TypeFamilyAid            Type = "FAMILY_AID"
	TypeTraining             Type = "TRAINING"
	TypeSupplementaryPension Type = "SUPPLEMENTARY_PENSION"
)

// TypeInfo describes a catalogue entry.
type TypeInfo struct {
	Type           Type   `json:"type"`
	Description    string `json:"description"`
	RequiresAmount bool   `json:"requires_amount"`
}

var catalog = map[Type]TypeInfo{
	TypeHealth:               {TypeHealth, "Health coverage", true},
	TypeUnemploymentSubsidy:  {TypeUnemploymentSubsidy, "Unemployment subsidy", true},
	TypeDisabilitySubsidy:    {TypeDisabilitySubsidy, "Disability subsidy", true},
	TypePharmacyDiscount:     {TypePharmacyDiscount, "Pharmacy discount", false},
	TypeOpticalDiscount:      {TypeOpticalDiscount, "Optical discount", false},
	TypeFamilyAid:            {TypeFamilyAid, "Birth or adoption aid", true},
	TypeTraining:             {TypeTraining, "Training aid", true},
	TypeSupplementaryPension: {TypeSupplementaryPension, "Supplementary pension", true},
}

// Lookup returns the catalogue entry for t.
func Lookup(t Type) (TypeInfo, bool) {
	info, ok := catalog[t]
	return info, ok
}

// Catalog returns every entry sorted by type name.
func Catalog() []TypeInfo {
	out := make([]TypeInfo, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (t Type) Valid() bool {
	_, ok := catalog[t]
	return ok
}

func (t Type) RequiresAmount() bool {
	return catalog[t].RequiresAmount
}

func (t Type) Description() string {
	return catalog[t].Description
}
