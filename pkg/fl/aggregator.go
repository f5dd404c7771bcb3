package fl

import (
	"fmt"
	"sort"
)

// FedAvgAggregator averages updates weighted by their sample counts.
type FedAvgAggregator struct{}

func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{}
}

func (f *FedAvgAggregator) Aggregate(updates []Update) (Result, error) {
	if len(updates) == 0 {
		return Result{}, ErrNoUpdates
	}

	var totalSamples uint64
	for _, u := range updates {
		if totalSamples+u.NumSamples < totalSamples {
			return Result{}, ErrOverflow
		}
		totalSamples += u.NumSamples
	}
	if totalSamples == 0 {
		return Result{}, ErrZeroSamples
	}

	if err := checkShape(updates); err != nil {
		return Result{}, err
	}

	aggregated := make(Weights, len(updates[0].Weights))
	for k, v := range updates[0].Weights {
		aggregated[k] = make([]float64, len(v))
	}

	var loss, accuracy float64
	contributions := make([]Contribution, 0, len(updates))
	norm := float64(totalSamples)

	for _, u := range updates {
		weight := float64(u.NumSamples) / norm
		for k, v := range u.Weights {
			dst := aggregated[k]
			for i, x := range v {
				dst[i] += x * weight
			}
		}
		loss += u.Loss * weight
		accuracy += u.Accuracy * weight

		contributions = append(contributions, Contribution{
			ClientID:   u.ClientID,
			NumSamples: u.NumSamples,
			Loss:       u.Loss,
			Accuracy:   u.Accuracy,
		})
	}

	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].ClientID < contributions[j].ClientID
	})

	return Result{
		Weights:       aggregated,
		Loss:          loss,
		Accuracy:      accuracy,
		NumClients:    uint64(len(updates)),
		TotalSamples:  totalSamples,
		Contributions: contributions,
	}, nil
}

func checkShape(updates []Update) error {
	ref := updates[0].Weights
	for _, u := range updates[1:] {
		if len(u.Weights) != len(ref) {
			return fmt.Errorf("%w: client %s has %d tensors, expected %d", ErrShapeMismatch, u.ClientID, len(u.Weights), len(ref))
		}
		for _, k := range ref.Keys() {
			v := ref[k]
			w, ok := u.Weights[k]
			if !ok {
				return fmt.Errorf("%w: client %s is missing tensor %q", ErrShapeMismatch, u.ClientID, k)
			}
			if len(w) != len(v) {
				return fmt.Errorf("%w: client %s tensor %q has %d values, expected %d", ErrShapeMismatch, u.ClientID, k, len(w), len(v))
			}
		}
	}

	return nil
}
