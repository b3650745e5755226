package hashtable

import "strconv"
import "sync"
import "testing"

func fill(t *testing.T, ht *Hashtable_t, n int) {
	for i := 0; i < n; i++ {
		k := strconv.Itoa(i)
		ht.Set(k, i)
		v, ok := ht.Get(k)
		if !ok {
			t.Fatalf("%v key", k)
		}
		if v != i {
			t.Fatalf("%v val", k)
		}
	}
}

const SZ = 10

func TestSimple(t *testing.T) {
	ht := MkHash(SZ)

	fill(t, ht, 3*SZ)
	if ht.Size() != 3*SZ {
		t.Fatalf("size %d", ht.Size())
	}
	for i := 1; i < 3*SZ; i++ {
		k0 := strconv.Itoa(0)
		k := strconv.Itoa(i)
		ht.Del(k)
		v, ok := ht.Get(k0)
		if !ok {
			t.Fatalf("%v key", k0)
		}
		if v != 0 {
			t.Fatalf("%v val", k0)
		}
		_, ok = ht.Get(k)
		if ok {
			t.Fatalf("%v key", k0)
		}
	}
	if ht.Size() != 1 {
		t.Fatalf("size %d", ht.Size())
	}
}

func TestSetExisting(t *testing.T) {
	ht := MkHash(SZ)
	if _, ok := ht.Set(uint64(7), "a"); !ok {
		t.Fatalf("first set")
	}
	v, ok := ht.Set(uint64(7), "b")
	if ok || v != "a" {
		t.Fatalf("second set replaced: %v %v", v, ok)
	}
}

func TestConcurrent(t *testing.T) {
	const nproc = 4
	const nper = 200
	ht := MkHash(SZ)
	var wg sync.WaitGroup
	for p := 0; p < nproc; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < nper; i++ {
				k := p*nper + i
				if _, ok := ht.Set(k, k); !ok {
					t.Errorf("%v exists", k)
				}
				if v, ok := ht.Get(k); !ok || v != k {
					t.Errorf("%v lost", k)
				}
			}
		}(p)
	}
	wg.Wait()
	n := 0
	ht.Iter(func(k, v interface{}) bool {
		n++
		return true
	})
	if n != nproc*nper {
		t.Fatalf("iter saw %d", n)
	}
}
