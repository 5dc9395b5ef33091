package prompt

import "sync"

// Scope is a caller-owned stack of contexts. Each pushed frame is merged onto
// the frame below it, so Current always holds the combined context.
type Scope struct {
	mu     sync.Mutex
	frames []Context
}

func NewScope(base Context) *Scope {
	return &Scope{frames: []Context{base}}
}

// Current returns the merged context at the top of the stack.
func (s *Scope) Current() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Context{}
	}
	return s.frames[len(s.frames)-1]
}

// Push merges frame onto the current context. It fails without changing the
// stack when the merge conflicts.
func (s *Scope) Push(frame Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var top Context
	if len(s.frames) > 0 {
		top = s.frames[len(s.frames)-1]
	}
	merged, err := top.Merge(frame)
	if err != nil {
		return err
	}
	s.frames = append(s.frames, merged)
	return nil
}

// Pop discards the top frame. The base frame is never popped.
func (s *Scope) Pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Do runs fn with frame pushed and pops it afterwards.
func (s *Scope) Do(frame Context, fn func(Context) error) error {
	if err := s.Push(frame); err != nil {
		return err
	}
	defer s.Pop()
	return fn(s.Current())
}

// Apply merges the current context into every component of l.
func (s *Scope) Apply(l Literal) (Literal, error) {
	return l.Merging(s.Current())
}
