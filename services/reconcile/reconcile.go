// Package reconcile pairs a country's immunization calendar templates with a
// child's recorded doses and produces the age-bucketed view the vaccine screen
// renders. The computation is pure and synchronous: it reads its inputs,
// allocates fresh output and never errors - malformed individual values
// degrade per-value, a missing birth date degrades to an all-pending view.
package reconcile

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sproutcare/sprout-api/dates"
)

const (
	// MatchToleranceMonths is the half-width of the window around a
	// template's target age within which a record is considered to belong to
	// that template. Ages on both sides of the comparison use the same
	// average-month arithmetic (dates.AvgDaysPerMonth) - do not mix in
	// calendar-month math or the window silently narrows or widens.
	MatchToleranceMonths = 1.0

	// toleranceEpsilon absorbs float noise from millisecond arithmetic so
	// a record dated exactly one tolerance-width away still matches.
	toleranceEpsilon = 1e-9

	NewbornLabel = "Newborn"
)

// Reconcile produces one AgeBucket per distinct target age appearing in
// templates, pairing each template with at most one record. Guarantees:
//
//   - conservation: every template yields exactly one BucketEntry
//   - no double-counting: a record id is consumed by at most one entry
//   - determinism: ties resolve to the first unconsumed record in input order
//
// A nil birth means target dates cannot be computed; the result degrades to
// one all-pending bucket per distinct template name with no suggested dates.
func Reconcile(templates []DoseTemplate, birth *dates.Instant, records []VaccineRecord) []AgeBucket {
	if len(templates) == 0 {
		return []AgeBucket{}
	}

	if birth == nil {
		return reconcileWithoutBirth(templates)
	}

	buckets := groupTemplates(templates)
	consumed := make(map[string]struct{}, len(records))

	for bi := range buckets {
		bucket := &buckets[bi]

		for _, tmpl := range bucket.templates {
			targetAge, targetDate := project(*birth, tmpl)

			record := findMatch(records, consumed, tmpl.Name, *birth, targetAge)
			if record != nil {
				consumed[record.ID] = struct{}{}

				bucket.entries = append(bucket.entries, BucketEntry{
					Kind:   EntryKindMatched,
					Record: record,
				})

				continue
			}

			suggested := targetDate

			bucket.entries = append(bucket.entries, BucketEntry{
				Kind:                   EntryKindPending,
				TemplateName:           tmpl.Name,
				SuggestedScheduledDate: &suggested,
				Notes:                  tmpl.Notes,
			})
		}
	}

	out := make([]AgeBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, AgeBucket{
			TargetAgeMonths: b.ageMonths,
			Label:           b.label,
			Entries:         b.entries,
		})
	}

	return out
}

// workingBucket accumulates entries during one reconciliation pass.
type workingBucket struct {
	key       string
	ageMonths float64
	label     string
	templates []DoseTemplate
	entries   []BucketEntry
}

// groupTemplates builds the bucket list in ascending age order. Months and
// weeks bucket separately even when they resolve to similar ages - they carry
// different labels and different projection math.
func groupTemplates(templates []DoseTemplate) []workingBucket {
	index := make(map[string]int)
	buckets := make([]workingBucket, 0)

	for _, tmpl := range templates {
		key, ageMonths, label := bucketKey(tmpl)

		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i

			buckets = append(buckets, workingBucket{
				key:       key,
				ageMonths: ageMonths,
				label:     label,
			})
		}

		buckets[i].templates = append(buckets[i].templates, tmpl)
	}

	sort.SliceStable(buckets, func(a, b int) bool {
		return buckets[a].ageMonths < buckets[b].ageMonths
	})

	return buckets
}

func bucketKey(tmpl DoseTemplate) (key string, ageMonths float64, label string) {
	if tmpl.TargetAgeWeeks != nil {
		weeks := *tmpl.TargetAgeWeeks

		return fmt.Sprintf("w:%d", weeks),
			float64(weeks) * 7 / dates.AvgDaysPerMonth,
			fmt.Sprintf("%d weeks", weeks)
	}

	months := float64(0)
	if tmpl.TargetAgeMonths != nil {
		months = *tmpl.TargetAgeMonths
	}

	label = fmt.Sprintf("%s months", trimFloat(months))
	if months == 0 {
		label = NewbornLabel
	}

	return fmt.Sprintf("m:%s", trimFloat(months)), months, label
}

// project resolves a template's target age into (comparison age, target
// date). Weeks project with exact 7-day math, months with the average-month
// constant. The comparison age is re-inferred from the projected date so that
// both sides of the tolerance check travel through the exact same arithmetic;
// anchoring on the raw template age instead would let the day-rounding done
// at projection time skew the window.
func project(birth dates.Instant, tmpl DoseTemplate) (float64, dates.Instant) {
	var targetDate dates.Instant

	if tmpl.TargetAgeWeeks != nil {
		targetDate = dates.ProjectWeeks(birth, *tmpl.TargetAgeWeeks)
	} else {
		months := float64(0)
		if tmpl.TargetAgeMonths != nil {
			months = *tmpl.TargetAgeMonths
		}

		targetDate = dates.ProjectMonths(birth, months)
	}

	return dates.AgeInMonths(birth, targetDate), targetDate
}

// findMatch returns the first unconsumed record (in input order) whose name
// matches case-insensitively and whose inferred age falls inside the
// tolerance window. "First wins" is deliberate: doses are typically
// registered in temporal order, and a closest-date tie-break would make the
// result depend on reconciliation internals the user can't see.
func findMatch(records []VaccineRecord, consumed map[string]struct{}, name string, birth dates.Instant, targetAge float64) *VaccineRecord {
	for i := range records {
		record := &records[i]

		if _, ok := consumed[record.ID]; ok {
			continue
		}

		if !strings.EqualFold(record.Name, name) {
			continue
		}

		// Age inference uses the scheduled date only; a record without one
		// cannot be placed in a bucket (it stays in the flat view).
		if record.ScheduledDate == nil {
			continue
		}

		// Unclamped on purpose: a record dated before birth must not match a
		// near-birth template.
		age := dates.AgeInMonths(birth, *record.ScheduledDate)

		if math.Abs(age-targetAge) <= MatchToleranceMonths+toleranceEpsilon {
			return record
		}
	}

	return nil
}

// reconcileWithoutBirth degrades to one pending bucket per distinct template
// name, preserving first-appearance order. No suggested dates can be computed.
func reconcileWithoutBirth(templates []DoseTemplate) []AgeBucket {
	index := make(map[string]int)
	buckets := make([]AgeBucket, 0)

	for _, tmpl := range templates {
		key := strings.ToLower(tmpl.Name)

		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i

			buckets = append(buckets, AgeBucket{
				Label: tmpl.Name,
			})
		}

		buckets[i].Entries = append(buckets[i].Entries, BucketEntry{
			Kind:         EntryKindPending,
			TemplateName: tmpl.Name,
			Notes:        tmpl.Notes,
		})
	}

	return buckets
}

// trimFloat renders 2.0 as "2" but keeps 1.5 as "1.5".
func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
