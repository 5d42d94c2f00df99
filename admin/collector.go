package admin

import (
	"github.com/prometheus/client_golang/prometheus"

	"tuplespace/space"
)

var spaceTuplesDesc = prometheus.NewDesc(
	"tuplespace_space_tuples",
	"Tuples currently stored, by space.",
	[]string{"space"}, nil,
)

// spaceCollector reports the size of every space at scrape time.
type spaceCollector struct {
	repo *space.Repository
}

func newSpaceCollector(repo *space.Repository) prometheus.Collector {
	return spaceCollector{repo: repo}
}

func (c spaceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- spaceTuplesDesc
}

func (c spaceCollector) Collect(ch chan<- prometheus.Metric) {
	for name, size := range c.repo.Sizes() {
		ch <- prometheus.MustNewConstMetric(spaceTuplesDesc, prometheus.GaugeValue, float64(size), name)
	}
}
