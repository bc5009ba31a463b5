package blockingpool

import "github.com/sinhashubham95/go-utils/structures/stack"

// mvStack implements a multi-version stack, used as the pool's idle set:
// LIFO hand-out within a version (cache-friendly reuse), but a bulk drain
// (maintenance, shrink) can take every idle entry across versions without
// starving a concurrent Acquire that pushes new ones mid-scan.
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

func (s *mvStack) length() int {
	l := s.old.Length()
	if s.old != s.new {
		l += s.new.Length()
	}
	return l
}

// drainAll removes and returns every idle entry, oldest version first.
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
