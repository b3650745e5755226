package stats

import "fmt"
import "reflect"
import "strconv"
import "strings"
import "sync"
import "sync/atomic"
import "time"

import "github.com/aclements/go-moremath/stats"

const Stats = true
const Timing = true

type Counter_t int64
type Cycles_t int64

func (c *Counter_t) Inc() {
	if Stats {
		atomic.AddInt64((*int64)(c), 1)
	}
}

func (c *Counter_t) Add(n int64) {
	if Stats {
		atomic.AddInt64((*int64)(c), n)
	}
}

// raises c to n if n is larger.
func (c *Counter_t) Max(n int64) {
	for {
		o := atomic.LoadInt64((*int64)(c))
		if n <= o || atomic.CompareAndSwapInt64((*int64)(c), o, n) {
			return
		}
	}
}

func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// adds the time elapsed since start, in nanoseconds.
func (c *Cycles_t) Add(start time.Time) {
	if Timing {
		atomic.AddInt64((*int64)(c), int64(time.Since(start)))
	}
}

func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Int()
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(n, 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Int()
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(n, 10)
		}
	}
	return s + "\n"
}

// maximum number of samples a Latency_t keeps; later samples overwrite the
// oldest.
const Maxsamples = 4096

// a bounded set of latency samples in microseconds.
type Latency_t struct {
	sync.Mutex
	xs   []float64
	next int
	n    int64
}

func (l *Latency_t) Record(start time.Time) {
	if !Timing {
		return
	}
	us := float64(time.Since(start)) / float64(time.Microsecond)
	l.Lock()
	if len(l.xs) < Maxsamples {
		l.xs = append(l.xs, us)
	} else {
		l.xs[l.next] = us
		l.next = (l.next + 1) % Maxsamples
	}
	l.n++
	l.Unlock()
}

func (l *Latency_t) Count() int64 {
	l.Lock()
	defer l.Unlock()
	return l.n
}

func (l *Latency_t) sample() *stats.Sample {
	l.Lock()
	xs := make([]float64, len(l.xs))
	copy(xs, l.xs)
	l.Unlock()
	s := &stats.Sample{Xs: xs}
	return s.Sort()
}

func (l *Latency_t) Mean() float64 {
	s := l.sample()
	if len(s.Xs) == 0 {
		return 0
	}
	return s.Mean()
}

// p is in [0, 1].
func (l *Latency_t) Percentile(p float64) float64 {
	s := l.sample()
	if len(s.Xs) == 0 {
		return 0
	}
	return s.Quantile(p)
}

func (l *Latency_t) String() string {
	s := l.sample()
	if len(s.Xs) == 0 {
		return "no samples"
	}
	lo, hi := s.Bounds()
	return fmt.Sprintf("n=%d mean=%.1fus sd=%.1fus min=%.1fus p50=%.1fus p99=%.1fus max=%.1fus",
		l.Count(), s.Mean(), s.StdDev(), lo, s.Quantile(0.5),
		s.Quantile(0.99), hi)
}
