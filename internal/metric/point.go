package metric

import "time"

// Kind is the metric intake type understood by the sink.
type Kind int

const (
	Gauge Kind = iota
	Count
	Rate
)

func (k Kind) String() string {
	switch k {
	case Count:
		return "count"
	case Rate:
		return "rate"
	default:
		return "gauge"
	}
}

// Point is one emitted metric value. Points are never mutated after
// normalization.
type Point struct {
	Name      string
	Timestamp int64 // unix seconds
	Value     float64
	Tags      []string
	Kind      Kind
}

func gauge(name string, ts time.Time, value float64, tags []string) Point {
	return Point{Name: name, Timestamp: ts.Unix(), Value: value, Tags: tags, Kind: Gauge}
}

func count(name string, ts time.Time, value float64, tags []string) Point {
	return Point{Name: name, Timestamp: ts.Unix(), Value: value, Tags: tags, Kind: Count}
}
