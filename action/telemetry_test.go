package action

import (
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"
)

func TestPacket(t *testing.T) {
	var p Packet
	_, ok := p.Last()
	test.That(t, ok, test.ShouldBeFalse)

	p.Put(Record{Label: "a", Target: 1})
	p.Put(Record{Label: "b", Target: 2})
	test.That(t, p.Len(), test.ShouldEqual, 2)

	last, ok := p.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, last.Label, test.ShouldEqual, "b")

	records := p.Records()
	records[0].Label = "changed"
	test.That(t, p.Records()[0].Label, test.ShouldEqual, "a")
}

func TestTee(t *testing.T) {
	var a, b Packet
	var seen []Record
	sink := Tee(&a, nil, &b, SinkFunc(func(r Record) { seen = append(seen, r) }))

	rec := Record{Label: DefaultLabel, Target: 10, Error: 3, Power: -0.25}
	sink.Put(rec)

	test.That(t, a.Records(), test.ShouldResemble, []Record{rec})
	test.That(t, b.Records(), test.ShouldResemble, []Record{rec})
	test.That(t, seen, test.ShouldResemble, []Record{rec})
}

func TestRecordRendering(t *testing.T) {
	rec := Record{Label: "arm", Target: -20, Error: 5, Power: 0.5}
	test.That(t, rec.String(), test.ShouldEqual, "Target: -20; Error 5; Power: 0.5")
	test.That(t, rec.Map(), test.ShouldResemble, map[string]interface{}{
		"label":  "arm",
		"target": -20,
		"error":  5,
		"power":  0.5,
	})
}

func TestLoggerSink(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	LoggerSink(logger).Put(Record{Label: "lift", Target: 100, Error: 40, Power: 0.2})

	test.That(t, logs.FilterMessage("lift: Target: 100; Error 40; Power: 0.2").Len(), test.ShouldEqual, 1)
}
