package reconcile

import (
	"github.com/sproutcare/sprout-api/dates"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusApplied Status = "applied"
	StatusOverdue Status = "overdue"
)

// DoseTemplate is one scheduled entry in a country's immunization calendar.
// Templates are read-only to the engine. Exactly one of TargetAgeMonths or
// TargetAgeWeeks is set; weeks are never converted to months because the two
// units project onto dates with different math.
type DoseTemplate struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	TargetAgeMonths *float64 `json:"targetAgeMonths,omitempty"`
	TargetAgeWeeks  *int     `json:"targetAgeWeeks,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// VaccineRecord is a child's logged dose. The engine only ever reads a
// snapshot passed in by the caller - records are owned by the upstream API.
// A record with neither date is legal but can never participate in bucket
// matching; it still belongs to the caller's unfiltered "all records" view.
type VaccineRecord struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        Status         `json:"status"`
	ScheduledDate *dates.Instant `json:"scheduledDate,omitempty"`
	AppliedDate   *dates.Instant `json:"appliedDate,omitempty"`
	Location      string         `json:"location,omitempty"`
	Batch         string         `json:"batch,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

type EntryKind string

const (
	EntryKindMatched EntryKind = "matched"
	EntryKindPending EntryKind = "pending"
)

// BucketEntry is either a template matched to a record, or a synthesized
// pending placeholder carrying the projected date a registration form can be
// pre-filled with.
type BucketEntry struct {
	Kind                   EntryKind      `json:"kind"`
	Record                 *VaccineRecord `json:"record,omitempty"`
	TemplateName           string         `json:"templateName,omitempty"`
	SuggestedScheduledDate *dates.Instant `json:"suggestedScheduledDate,omitempty"`
	Notes                  string         `json:"notes,omitempty"`
}

// AgeBucket groups the entries sharing one target age. Buckets are derived,
// ephemeral views - recomputed from scratch on every Reconcile call and never
// persisted.
type AgeBucket struct {
	TargetAgeMonths float64       `json:"targetAgeMonths"`
	Label           string        `json:"label"`
	Entries         []BucketEntry `json:"entries"`
}

// BucketCount is the per-bucket summary derived by Summarize.
type BucketCount struct {
	Applied int `json:"applied"`
	Total   int `json:"total"`
}
