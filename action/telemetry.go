package action

import (
	"fmt"

	"go.viam.com/rdk/logging"
)

// DefaultLabel is the label put on telemetry records when none is configured.
const DefaultLabel = "Motor Info"

// Record is the progress report emitted by one step. Power is exactly the
// value written to the actuator in that step.
type Record struct {
	Label  string
	Target int
	Error  int
	Power  float64
}

func (r Record) String() string {
	return fmt.Sprintf("Target: %d; Error %d; Power: %g", r.Target, r.Error, r.Power)
}

// Map returns the record as sensor readings.
func (r Record) Map() map[string]interface{} {
	return map[string]interface{}{
		"label":  r.Label,
		"target": r.Target,
		"error":  r.Error,
		"power":  r.Power,
	}
}

// Sink receives one Record per step.
type Sink interface {
	Put(r Record)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(r Record)

// Put calls f.
func (f SinkFunc) Put(r Record) {
	f(r)
}

// Packet collects records in the order they are put. The zero value is ready
// to use.
type Packet struct {
	records []Record
}

// Put appends r.
func (p *Packet) Put(r Record) {
	p.records = append(p.records, r)
}

// Records returns a copy of everything put so far.
func (p *Packet) Records() []Record {
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// Last returns the most recent record.
func (p *Packet) Last() (Record, bool) {
	if len(p.records) == 0 {
		return Record{}, false
	}
	return p.records[len(p.records)-1], true
}

// Len returns the number of records.
func (p *Packet) Len() int {
	return len(p.records)
}

// LoggerSink logs every record at debug level.
func LoggerSink(logger logging.Logger) Sink {
	return SinkFunc(func(r Record) {
		logger.Debugf("%s: %s", r.Label, r)
	})
}

// Tee forwards every record to each non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(r Record) {
		for _, s := range sinks {
			if s != nil {
				s.Put(r)
			}
		}
	})
}
