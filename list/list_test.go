package list

import "testing"
import "unsafe"

type obj_t struct {
	v    int
	link Listentry_t
}

var linkoff = unsafe.Offsetof(obj_t{}.link)

func vals(head *Listentry_t, back bool) []int {
	var r []int
	f := func(e *Listentry_t) bool {
		r = append(r, Container[obj_t](e, linkoff).v)
		return true
	}
	if back {
		head.Iter_back(f)
	} else {
		head.Iter(f)
	}
	return r
}

func eq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestList(t *testing.T) {
	var head Listentry_t
	head.Init()
	objs := make([]obj_t, 4)
	for i := range objs {
		objs[i].v = i
		objs[i].link.Init()
	}
	head.Push_back(&objs[1].link)
	head.Push_back(&objs[2].link)
	head.Push_front(&objs[0].link)
	head.Push_back(&objs[3].link)
	if got := vals(&head, false); !eq(got, []int{0, 1, 2, 3}) {
		t.Fatalf("forward %v", got)
	}
	if got := vals(&head, true); !eq(got, []int{3, 2, 1, 0}) {
		t.Fatalf("backward %v", got)
	}
	objs[2].link.Remove()
	if !objs[2].link.Unlinked() || head.Len() != 3 {
		t.Fatalf("remove")
	}
	objs[2].link.Check_unlinked()
	// moving to the front
	objs[3].link.Remove()
	head.Push_front(&objs[3].link)
	if got := vals(&head, false); !eq(got, []int{3, 0, 1}) {
		t.Fatalf("after move %v", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("check of linked node did not panic")
		}
	}()
	objs[0].link.Check_unlinked()
}
