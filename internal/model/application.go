package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an application. Any status may move to
// any other; only no-op transitions are rejected.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusInReview  Status = "IN_REVIEW"
	StatusContacted Status = "CONTACTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// AllStatuses is the canonical enum in display order. The dashboard labels
// and the transition endpoint both derive from it.
var AllStatuses = []Status{StatusNew, StatusInReview, StatusContacted, StatusCompleted, StatusCancelled}

var statusLabels = map[Status]string{
	StatusNew:       "New",
	StatusInReview:  "In review",
	StatusContacted: "Contacted",
	StatusCompleted: "Completed",
	StatusCancelled: "Cancelled",
}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Application mirrors the applications table.
type Application struct {
	ID              uint64
	ApplicationNum  string
	UserID          uint64
	LocationID      *uint64
	InsuranceID     *uint64
	TravelAbilityID *uint64
	IsEuResident    *bool // nil means unknown
	Status          Status
	ClientNotes     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusHistory is one append-only row of application_status_history.
type StatusHistory struct {
	ID            uint64    `json:"id"`
	ApplicationID uint64    `json:"applicationId"`
	NewStatus     Status    `json:"newStatus"`
	Comment       string    `json:"comment"`
	ChangedBy     *uint64   `json:"changedBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UserSummary is the owner block embedded in application read models.
type UserSummary struct {
	ID        uint64 `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ApplicationDetail is the joined read model returned by listing and detail.
type ApplicationDetail struct {
	ID             uint64          `json:"id"`
	ApplicationNum string          `json:"applicationNum"`
	Status         Status          `json:"status"`
	IsEuResident   *bool           `json:"isEuResident"`
	ClientNotes    string          `json:"clientNotes"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	User           UserSummary     `json:"user"`
	Location       *Reference      `json:"location"`
	Insurance      *Reference      `json:"insurance"`
	TravelAbility  *Reference      `json:"travelAbility"`
	Services       []Reference     `json:"services"`
	History        []StatusHistory `json:"history,omitempty"`
}

// ApplicationFilter narrows a listing query. Nil fields do not filter.
type ApplicationFilter struct {
	UserID *uint64
	Status *Status
	Limit  int
	Offset int
}

// StatusCount is one bucket of the dashboard summary.
type StatusCount struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
}
