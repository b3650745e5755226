package hw

import "encoding/json"
import "fmt"
import "io"
import "sync"

//
//  trace of the writes a disk receives
//

type Record_t struct {
	Cmd  string
	Off  int64
	Data []uint8
}

type Trace_t []Record_t

// a backing store that records every write and sync before passing it on.
type Tracedisk_t struct {
	sync.Mutex
	Backing_i
	recs Trace_t
	enc  *json.Encoder
}

// if w is not nil the records are also streamed to it as JSON.
func MkTracedisk(d Backing_i, w io.Writer) *Tracedisk_t {
	t := &Tracedisk_t{Backing_i: d}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

func (t *Tracedisk_t) record(r Record_t) {
	t.recs = append(t.recs, r)
	if t.enc != nil {
		if err := t.enc.Encode(&r); err != nil {
			panic(err)
		}
	}
}

func (t *Tracedisk_t) WriteAt(p []uint8, off int64) (int, error) {
	t.Lock()
	defer t.Unlock()
	c := make([]uint8, len(p))
	copy(c, p)
	t.record(Record_t{Cmd: "write", Off: off, Data: c})
	return t.Backing_i.WriteAt(p, off)
}

func (t *Tracedisk_t) Sync() error {
	t.Lock()
	defer t.Unlock()
	t.record(Record_t{Cmd: "sync"})
	return t.Backing_i.Sync()
}

func (t *Tracedisk_t) Trace() Trace_t {
	t.Lock()
	defer t.Unlock()
	ret := make(Trace_t, len(t.recs))
	copy(ret, t.recs)
	return ret
}

func ReadTrace(r io.Reader) (Trace_t, error) {
	var ret Trace_t
	dec := json.NewDecoder(r)
	for {
		var rec Record_t
		if err := dec.Decode(&rec); err == io.EOF {
			return ret, nil
		} else if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
}

func (trace Trace_t) Print(w io.Writer, start, end int) {
	fmt.Fprintf(w, "trace (%d,%d):\n", start, end)
	for i, r := range trace {
		if i >= start && i < end {
			fmt.Fprintf(w, "  %d: %v %v\n", i, r.Cmd, r.Off)
		}
	}
}

func (trace Trace_t) Nwrites() int {
	n := 0
	for _, r := range trace {
		if r.Cmd == "write" {
			n++
		}
	}
	return n
}

// the disk as it would be after a crash that lost every write past the
// first n, starting from img.
func (trace Trace_t) Crash(img []uint8, n int) *Memdisk_t {
	d := MkMemdiskFrom(img)
	for _, r := range trace {
		if r.Cmd != "write" {
			continue
		}
		if n == 0 {
			break
		}
		n--
		if _, err := d.WriteAt(r.Data, r.Off); err != nil {
			panic(err)
		}
	}
	return d
}
