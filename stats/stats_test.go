package stats

import "strings"
import "testing"
import "time"

type teststats_t struct {
	Nhit  Counter_t
	Nmiss Counter_t
}

func TestCounters(t *testing.T) {
	st := &teststats_t{}
	st.Nhit.Inc()
	st.Nhit.Inc()
	st.Nmiss.Inc()
	if st.Nhit.Get() != 2 {
		t.Fatalf("got %d", st.Nhit.Get())
	}
	s := Stats2String(st)
	if !strings.Contains(s, "#Nhit: 2") || !strings.Contains(s, "#Nmiss: 1") {
		t.Fatalf("bad string %q", s)
	}
}

func TestLatency(t *testing.T) {
	var l Latency_t
	if l.Mean() != 0 {
		t.Fatalf("empty mean")
	}
	start := time.Now().Add(-time.Millisecond)
	for i := 0; i < 10; i++ {
		l.Record(start)
	}
	if l.Count() != 10 {
		t.Fatalf("count %d", l.Count())
	}
	if l.Mean() < 1000 {
		t.Fatalf("mean too small: %v", l.Mean())
	}
	if l.Percentile(0.99) < l.Percentile(0.1) {
		t.Fatalf("percentiles out of order")
	}
	if s := l.String(); !strings.Contains(s, "p99=") {
		t.Fatalf("summary %q", s)
	}
}
