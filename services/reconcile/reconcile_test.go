package reconcile_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sproutcare/sprout-api/dates"
	"github.com/sproutcare/sprout-api/services/reconcile"
)

func monthsPtr(f float64) *float64 { return &f }

func weeksPtr(i int) *int { return &i }

func instantPtr(i dates.Instant) *dates.Instant { return &i }

func day(year int, month time.Month, d int) dates.Instant {
	return dates.FromTime(time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
}

var _ = Describe("Reconcile", func() {
	var (
		birth dates.Instant

		// One average month in milliseconds; 30.44 days is an exact number
		// of seconds so there is no truncation here.
		avgMonth = dates.Instant(int64(dates.AvgDaysPerMonth * float64(dates.MillisPerDay)))
		oneDay   = dates.Instant(dates.MillisPerDay)

		templates []reconcile.DoseTemplate
	)

	BeforeEach(func() {
		birth = day(2024, 1, 1)

		templates = []reconcile.DoseTemplate{
			{ID: "t1", Name: "BCG", TargetAgeMonths: monthsPtr(0)},
			{ID: "t2", Name: "Hepatitis B", TargetAgeMonths: monthsPtr(0)},
			{ID: "t3", Name: "Pentavalent", TargetAgeMonths: monthsPtr(2)},
		}
	})

	Context("concrete calendar scenario", func() {
		var records []reconcile.VaccineRecord

		BeforeEach(func() {
			records = []reconcile.VaccineRecord{
				{
					ID:            "r1",
					Name:          "BCG",
					Status:        reconcile.StatusApplied,
					ScheduledDate: instantPtr(day(2024, 1, 5)),
				},
			}
		})

		It("produces one bucket per distinct target age, ascending", func() {
			buckets := reconcile.Reconcile(templates, &birth, records)

			Expect(buckets).To(HaveLen(2))
			Expect(buckets[0].Label).To(Equal(reconcile.NewbornLabel))
			Expect(buckets[0].TargetAgeMonths).To(BeNumerically("~", 0, 0.01))
			Expect(buckets[1].Label).To(Equal("2 months"))
		})

		It("matches BCG and synthesizes pending placeholders for the rest", func() {
			buckets := reconcile.Reconcile(templates, &birth, records)

			newborn := buckets[0]
			Expect(newborn.Entries).To(HaveLen(2))
			Expect(newborn.Entries[0].Kind).To(Equal(reconcile.EntryKindMatched))
			Expect(newborn.Entries[0].Record.ID).To(Equal("r1"))
			Expect(newborn.Entries[1].Kind).To(Equal(reconcile.EntryKindPending))
			Expect(newborn.Entries[1].TemplateName).To(Equal("Hepatitis B"))

			twoMonths := buckets[1]
			Expect(twoMonths.Entries).To(HaveLen(1))
			Expect(twoMonths.Entries[0].Kind).To(Equal(reconcile.EntryKindPending))

			// round(2 * 30.44) = 61 days after birth
			Expect(*twoMonths.Entries[0].SuggestedScheduledDate).To(Equal(day(2024, 3, 2)))
		})

		It("is deterministic across repeated invocations", func() {
			first := reconcile.Reconcile(templates, &birth, records)
			second := reconcile.Reconcile(templates, &birth, records)

			Expect(second).To(Equal(first))
		})

		It("does not mutate its inputs", func() {
			originalRecord := records[0]

			reconcile.Reconcile(templates, &birth, records)

			Expect(records[0]).To(Equal(originalRecord))
			Expect(templates[0].ID).To(Equal("t1"))
		})
	})

	Context("tolerance window", func() {
		var targetDate dates.Instant

		BeforeEach(func() {
			templates = []reconcile.DoseTemplate{
				{ID: "t1", Name: "Pentavalent", TargetAgeMonths: monthsPtr(2)},
			}
			targetDate = dates.ProjectMonths(birth, 2)
		})

		record := func(scheduled dates.Instant) []reconcile.VaccineRecord {
			return []reconcile.VaccineRecord{
				{ID: "r1", Name: "Pentavalent", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(scheduled)},
			}
		}

		It("matches exactly one month early", func() {
			buckets := reconcile.Reconcile(templates, &birth, record(targetDate-avgMonth))
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindMatched))
		})

		It("matches exactly one month late", func() {
			buckets := reconcile.Reconcile(templates, &birth, record(targetDate+avgMonth))
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindMatched))
		})

		It("rejects one month and a day early", func() {
			buckets := reconcile.Reconcile(templates, &birth, record(targetDate-avgMonth-oneDay))
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindPending))
		})

		It("rejects one month and a day late", func() {
			buckets := reconcile.Reconcile(templates, &birth, record(targetDate+avgMonth+oneDay))
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindPending))
		})

		It("rejects a record dated before birth", func() {
			buckets := reconcile.Reconcile(templates, &birth, record(birth-avgMonth))
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindPending))
		})
	})

	Context("matching rules", func() {
		It("matches names case-insensitively", func() {
			records := []reconcile.VaccineRecord{
				{ID: "r1", Name: "bcg", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 2))},
			}

			buckets := reconcile.Reconcile(templates, &birth, records)
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindMatched))
		})

		It("skips records without a scheduled date", func() {
			records := []reconcile.VaccineRecord{
				{ID: "r1", Name: "BCG", Status: reconcile.StatusApplied, AppliedDate: instantPtr(day(2024, 1, 2))},
			}

			buckets := reconcile.Reconcile(templates, &birth, records)
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindPending))
		})

		It("resolves multi-match ties to the first record in input order", func() {
			records := []reconcile.VaccineRecord{
				{ID: "early", Name: "BCG", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 3))},
				// Closer to the target date, but later in the list
				{ID: "closer", Name: "BCG", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 1))},
			}

			buckets := reconcile.Reconcile(templates, &birth, records)
			Expect(buckets[0].Entries[0].Record.ID).To(Equal("early"))
		})

		It("never consumes a record id twice", func() {
			templates = []reconcile.DoseTemplate{
				{ID: "t1", Name: "OPV", TargetAgeMonths: monthsPtr(2)},
				{ID: "t2", Name: "OPV", TargetAgeMonths: monthsPtr(2)},
			}

			records := []reconcile.VaccineRecord{
				{ID: "r1", Name: "OPV", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 3, 1))},
			}

			buckets := reconcile.Reconcile(templates, &birth, records)

			seen := map[string]int{}
			for _, bucket := range buckets {
				for _, entry := range bucket.Entries {
					if entry.Kind == reconcile.EntryKindMatched {
						seen[entry.Record.ID]++
					}
				}
			}

			Expect(seen["r1"]).To(Equal(1))
		})

		It("emits exactly one entry per template", func() {
			records := []reconcile.VaccineRecord{
				{ID: "r1", Name: "BCG", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 5))},
				{ID: "r2", Name: "Rotavirus", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 3, 1))},
			}

			buckets := reconcile.Reconcile(templates, &birth, records)

			total := 0
			for _, bucket := range buckets {
				total += len(bucket.Entries)
			}

			Expect(total).To(Equal(len(templates)))
		})
	})

	Context("week-based templates", func() {
		BeforeEach(func() {
			templates = []reconcile.DoseTemplate{
				{ID: "t1", Name: "Rotavirus", TargetAgeWeeks: weeksPtr(6)},
				{ID: "t2", Name: "Pentavalent", TargetAgeMonths: monthsPtr(2)},
			}
		})

		It("projects weeks with exact 7-day math", func() {
			buckets := reconcile.Reconcile(templates, &birth, nil)

			Expect(buckets[0].Label).To(Equal("6 weeks"))
			Expect(*buckets[0].Entries[0].SuggestedScheduledDate).To(Equal(day(2024, 2, 12)))
		})

		It("orders week buckets among month buckets by resolved age", func() {
			buckets := reconcile.Reconcile(templates, &birth, nil)

			Expect(buckets).To(HaveLen(2))
			Expect(buckets[0].Label).To(Equal("6 weeks"))
			Expect(buckets[1].Label).To(Equal("2 months"))
		})

		It("matches a record dated at the projected week target", func() {
			records := []reconcile.VaccineRecord{
				{ID: "r1", Name: "Rotavirus", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 2, 12))},
			}

			buckets := reconcile.Reconcile(templates, &birth, records)
			Expect(buckets[0].Entries[0].Kind).To(Equal(reconcile.EntryKindMatched))
		})
	})

	Context("degraded inputs", func() {
		It("handles a nil birth date with one pending bucket per template name", func() {
			records := []reconcile.VaccineRecord{
				{ID: "r1", Name: "BCG", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 5))},
			}

			buckets := reconcile.Reconcile(templates, nil, records)

			Expect(buckets).To(HaveLen(3)) // BCG, Hepatitis B, Pentavalent
			for _, bucket := range buckets {
				for _, entry := range bucket.Entries {
					Expect(entry.Kind).To(Equal(reconcile.EntryKindPending))
					Expect(entry.SuggestedScheduledDate).To(BeNil())
				}
			}
		})

		It("groups same-name templates together when birth is nil", func() {
			templates = []reconcile.DoseTemplate{
				{ID: "t1", Name: "OPV", TargetAgeMonths: monthsPtr(2)},
				{ID: "t2", Name: "OPV", TargetAgeMonths: monthsPtr(4)},
				{ID: "t3", Name: "BCG", TargetAgeMonths: monthsPtr(0)},
			}

			buckets := reconcile.Reconcile(templates, nil, nil)

			Expect(buckets).To(HaveLen(2))
			Expect(buckets[0].Label).To(Equal("OPV"))
			Expect(buckets[0].Entries).To(HaveLen(2))
		})

		It("returns an empty slice for an empty calendar", func() {
			Expect(reconcile.Reconcile(nil, &birth, nil)).To(BeEmpty())
		})

		It("handles no records at all", func() {
			buckets := reconcile.Reconcile(templates, &birth, nil)

			total := 0
			for _, bucket := range buckets {
				total += len(bucket.Entries)
			}

			Expect(total).To(Equal(len(templates)))
		})
	})
})

var _ = Describe("Summarize", func() {
	birth := day(2024, 1, 1)

	templates := []reconcile.DoseTemplate{
		{ID: "t1", Name: "BCG", TargetAgeMonths: monthsPtr(0)},
		{ID: "t2", Name: "Hepatitis B", TargetAgeMonths: monthsPtr(0)},
		{ID: "t3", Name: "Pentavalent", TargetAgeMonths: monthsPtr(2)},
	}

	It("counts applied vs total per bucket", func() {
		records := []reconcile.VaccineRecord{
			{ID: "r1", Name: "BCG", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 5))},
			{ID: "r2", Name: "Hepatitis B", Status: reconcile.StatusPending, ScheduledDate: instantPtr(day(2024, 1, 5))},
		}

		buckets := reconcile.Reconcile(templates, &birth, records)
		summary := reconcile.Summarize(buckets)

		Expect(summary[reconcile.NewbornLabel]).To(Equal(reconcile.BucketCount{Applied: 1, Total: 2}))
		Expect(summary["2 months"]).To(Equal(reconcile.BucketCount{Applied: 0, Total: 1}))
	})

	It("reports completion only when every entry is applied", func() {
		records := []reconcile.VaccineRecord{
			{ID: "r1", Name: "BCG", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 5))},
			{ID: "r2", Name: "Hepatitis B", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 1, 5))},
			{ID: "r3", Name: "Pentavalent", Status: reconcile.StatusApplied, ScheduledDate: instantPtr(day(2024, 3, 2))},
		}

		buckets := reconcile.Reconcile(templates, &birth, records)
		Expect(reconcile.Complete(buckets)).To(BeTrue())

		partial := reconcile.Reconcile(templates, &birth, records[:1])
		Expect(reconcile.Complete(partial)).To(BeFalse())
	})

	It("handles empty input", func() {
		Expect(reconcile.Summarize(nil)).To(BeEmpty())
		Expect(reconcile.Complete(nil)).To(BeFalse())
	})
})
