package model

// LookupKind names one of the four reference tables.
type LookupKind string

const (
	KindLocation      LookupKind = "location"
	KindService       LookupKind = "service"
	KindInsurance     LookupKind = "insurance"
	KindTravelAbility LookupKind = "travel_ability"
)

// LookupKinds lists every reference table in seed order.
var LookupKinds = []LookupKind{KindLocation, KindService, KindInsurance, KindTravelAbility}

// Table returns the SQL table backing the kind, or "" for an unknown kind.
// Callers interpolate it into queries, so it must stay a closed set.
func (k LookupKind) Table() string {
	switch k {
	case KindLocation:
		return "locations"
	case KindService:
		return "services"
	case KindInsurance:
		return "insurance_statuses"
	case KindTravelAbility:
		return "travel_abilities"
	}
	return ""
}

// LocalizedNames holds the display name in each supported locale.
type LocalizedNames struct {
	De string `json:"de" yaml:"de"`
	En string `json:"en" yaml:"en"`
	Ru string `json:"ru" yaml:"ru"`
	Uk string `json:"uk" yaml:"uk"`
}

// Reference is a row of any lookup table.
type Reference struct {
	ID        uint64         `json:"id"`
	Code      string         `json:"code"`
	Names     LocalizedNames `json:"names"`
	SortOrder int            `json:"sortOrder"`
	IsActive  bool           `json:"isActive"`
}

// Location codes. They double as the currentLocation answers of the wizard.
const (
	LocationGermany = "germany"
	LocationEU      = "eu"
	LocationOther   = "other"
)

// Service codes, one per optional service flag of a submission.
const (
	ServiceCharter     = "charter"
	ServiceTransport   = "transport"
	ServiceVisa        = "visa"
	ServiceInterpreter = "interpreter"
	ServiceHotel       = "hotel"
)
