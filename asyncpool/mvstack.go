package asyncpool

import "github.com/sinhashubham95/go-utils/structures/stack"

// mvStack implements a multi-version stack, used as the pool's idle set.
//
// mvStack works as a common stack except that all elements in the older
// version are guaranteed to be popped before any element in the newer
// version. New elements are always pushed to the current (latest)
// version.
//
// Put differently: mvStack behaves as a stack when there is a single
// version (giving Acquire the LIFO, cache-friendly hand-out spec.md §3
// asks for), but behaves as a queue of individual version stacks once
// bump has been called, which is what lets a bulk drain (maintenance,
// shrink) take every idle entry without starving a concurrent Acquire
// that pushes new ones mid-scan.
type mvStack struct {
	old *stack.Stack[*entry]
	new *stack.Stack[*entry]
}

func newMVStack() *mvStack {
	s := stack.New[*entry]()
	return &mvStack{old: s, new: s}
}

func (s *mvStack) pop() (*entry, bool) {
	if s.old.Length() == 0 && s.old != s.new {
		s.old = s.new
	}
	if s.old.Length() == 0 {
		return nil, false
	}
	return s.old.Pop()
}

func (s *mvStack) push(e *entry) {
	s.new.Push(e)
}

// bump starts a new version, so a subsequent drain of the old version
// (via pop) is guaranteed to see only entries pushed before bump was
// called.
func (s *mvStack) bump() {
	if s.old == s.new {
		s.new = stack.New[*entry]()
		return
	}
	old := make([]*entry, s.old.Length())
	for s.old.Length() > 0 {
		e, _ := s.old.Pop()
		old[s.old.Length()] = e
	}
	for _, e := range old {
		s.new.Push(e)
	}
	s.old, s.new = s.new, s.old
}

func (s *mvStack) length() int {
	l := s.old.Length()
	if s.old != s.new {
		l += s.new.Length()
	}
	return l
}

// drainAll removes and returns every idle entry, oldest version first.
// Used by the maintenance and shrink loops, which need to inspect the
// whole idle set rather than a single LIFO pop.
func (s *mvStack) drainAll() []*entry {
	var out []*entry
	for {
		e, ok := s.pop()
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}
