package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// findSeries returns the first series of name whose labels include every pair in want.
func findSeries(mfs []*dto.MetricFamily, name string, want map[string]string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, m := range mf.GetMetric() {
		have := map[string]string{}
		for _, lp := range m.GetLabel() {
			have[lp.GetName()] = lp.GetValue()
		}
		matched := true
		for k, v := range want {
			if have[k] != v {
				matched = false
				break
			}
		}
		if matched {
			return m, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series %v", name, want)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	m, err := findSeries(mfs, name, map[string]string{label: value})
	if err != nil {
		return 0, err
	}
	return m.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	m, err := findSeries(mfs, name, map[string]string{label: value})
	if err != nil {
		return 0, err
	}
	return m.GetHistogram().GetSampleSum(), nil
}
