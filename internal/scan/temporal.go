package scan

import (
	"fmt"
	"sort"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"fortean/domain/anomaly"
	"fortean/domain/core"
	"fortean/domain/discovery"
)

const (
	minTemporalMonths = 12
	spikeZThreshold   = 2.0
	minSpikeCount     = 10
)

// scanTemporal buckets each domain's dated reports into calendar months and
// flags months whose count stands more than two standard deviations above
// the domain's own monthly mean. Only months with at least one report enter
// the baseline; a domain needs a year of history before it can spike.
func scanTemporal(records []anomaly.EventRecord) []discovery.PatternCandidate {
	byDomain := anomaly.ByType(anomaly.Dated(records))

	candidates := make([]discovery.PatternCandidate, 0)
	for _, domain := range anomaly.AllTypes() {
		dated := byDomain[domain]
		if len(dated) < minQualifyingRecords {
			continue
		}

		counts := make(map[core.MonthKey]int)
		for _, rec := range dated {
			counts[core.NewMonthKey(rec.ObservedAt.Time())]++
		}
		if len(counts) < minTemporalMonths {
			continue
		}

		months := make([]core.MonthKey, 0, len(counts))
		values := make([]float64, 0, len(counts))
		for month := range counts {
			months = append(months, month)
		}
		sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
		for _, month := range months {
			values = append(values, float64(counts[month]))
		}

		mean, _ := mstats.Mean(values)
		sd, _ := mstats.StandardDeviation(values)
		if sd == 0 {
			continue
		}

		normal := distuv.Normal{Mu: 0, Sigma: 1}
		spikes := make([]discovery.MonthSpike, 0)
		for _, month := range months {
			count := counts[month]
			z := (float64(count) - mean) / sd
			if z > spikeZThreshold && count >= minSpikeCount {
				spikes = append(spikes, discovery.MonthSpike{
					Month:   month,
					Count:   count,
					ZScore:  z,
					ApproxP: normal.Survival(z),
				})
			}
		}
		if len(spikes) == 0 {
			continue
		}

		sort.Slice(spikes, func(i, j int) bool { return spikes[i].ZScore > spikes[j].ZScore })
		topZ := spikes[0].ZScore

		candidates = append(candidates, discovery.PatternCandidate{
			ID:   core.NewPatternID(),
			Type: discovery.PatternTemporal,
			Description: fmt.Sprintf("%s reports cluster in time: %d month spike(s), strongest %s (z=%.1f)",
				domain, len(spikes), spikes[0].Month, topZ),
			Domains: []anomaly.PhenomenonType{domain},
			Evidence: discovery.Evidence{
				Kind: discovery.PatternTemporal,
				Temporal: &discovery.TemporalEvidence{
					Domain:         domain,
					MonthsObserved: len(months),
					MonthlyMean:    mean,
					MonthlyStdDev:  sd,
					Spikes:         spikes,
					TopZ:           topZ,
				},
			},
			PreliminaryStrength: clampStrength(topZ / 5.0),
			DiscoveredAt:        core.Now(),
		})
	}
	return candidates
}
