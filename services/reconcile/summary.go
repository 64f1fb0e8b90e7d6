package reconcile

// Summarize derives the per-bucket display counters from a reconciliation
// result, keyed by bucket label. Applied counts matched entries whose record
// status is StatusApplied; Total counts every entry. Pure and total - there
// are no failure modes.
func Summarize(buckets []AgeBucket) map[string]BucketCount {
	out := make(map[string]BucketCount, len(buckets))

	for _, bucket := range buckets {
		count := BucketCount{
			Total: len(bucket.Entries),
		}

		for _, entry := range bucket.Entries {
			if entry.Kind != EntryKindMatched || entry.Record == nil {
				continue
			}

			if entry.Record.Status == StatusApplied {
				count.Applied++
			}
		}

		out[bucket.Label] = count
	}

	return out
}

// Complete reports whether every bucket is fully applied. Used as the
// overall completion indicator on the vaccines screen.
func Complete(buckets []AgeBucket) bool {
	if len(buckets) == 0 {
		return false
	}

	for _, count := range Summarize(buckets) {
		if count.Applied < count.Total {
			return false
		}
	}

	return true
}
