package vaccine

import (
	"strings"

	"github.com/sproutcare/sprout-api/backends/immunize"
	"github.com/sproutcare/sprout-api/dates"
	"github.com/sproutcare/sprout-api/services/reconcile"
)

// ParseRecordSet normalizes a raw upstream records response. It never fails:
// records with undecodable dates keep nil date fields, unknown statuses fall
// back to pending, and a bad birth date yields a nil Birth (the engine
// degrades gracefully without one).
func ParseRecordSet(raw *immunize.RawRecordsResponse) *RecordSet {
	rs := &RecordSet{
		Records:                make([]reconcile.VaccineRecord, 0, len(raw.Items)),
		Country:                raw.Country,
		NeedsCountryAssignment: raw.NeedsCountryAssignment,
	}

	if birth, ok := dates.NormalizeJSON(raw.BirthDate); ok {
		rs.Birth = &birth
	}

	for _, item := range raw.Items {
		rs.Records = append(rs.Records, ParseRecord(item))
	}

	return rs
}

// ParseRecord normalizes a single raw record.
func ParseRecord(raw immunize.RawVaccineRecord) reconcile.VaccineRecord {
	record := reconcile.VaccineRecord{
		ID:       raw.ID,
		Name:     raw.Name,
		Status:   parseStatus(raw.Status),
		Location: raw.Location,
		Batch:    raw.Batch,
		Notes:    raw.Notes,
	}

	if scheduled, ok := dates.NormalizeJSON(raw.ScheduledDate); ok {
		record.ScheduledDate = &scheduled
	}

	if applied, ok := dates.NormalizeJSON(raw.AppliedDate); ok {
		record.AppliedDate = &applied
	}

	return record
}

func parseStatus(raw string) reconcile.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(reconcile.StatusApplied):
		return reconcile.StatusApplied
	case string(reconcile.StatusOverdue):
		return reconcile.StatusOverdue
	default:
		return reconcile.StatusPending
	}
}
