package vm

import "fmt"

// Frame is one routine activation. Fields are exported for the
// snapshot encoder; nothing outside the package mutates them.
type Frame struct {
	ReturnPC  uint32
	Locals    [15]uint16
	NumLocals byte
	StackBase int // evaluation stack depth at call time
	StoreVar  byte
}

// Stack is the shared evaluation stack plus the call frame stack.
// Frames are strictly nested: a frame's portion of the evaluation
// stack is everything above its StackBase, discarded on return.
type Stack struct {
	values []uint16
	frames []Frame

	maxValues int
	maxFrames int
}

func newStack(maxValues, maxFrames int) *Stack {
	return &Stack{
		values:    make([]uint16, 0, maxValues),
		frames:    make([]Frame, 0, maxFrames),
		maxValues: maxValues,
		maxFrames: maxFrames,
	}
}

func (s *Stack) push(v uint16) error {
	if len(s.values) >= s.maxValues {
		return fmt.Errorf("evaluation stack overflow at %d entries: %w", s.maxValues, errStack)
	}
	s.values = append(s.values, v)
	return nil
}

func (s *Stack) pop() (uint16, error) {
	if len(s.values) <= s.base() {
		return 0, fmt.Errorf("evaluation stack underflow: %w", errStack)
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

// peek returns a pointer to the top entry for in-place variable 0
// updates (inc, dec and friends operate without pushing or popping).
func (s *Stack) peek() (*uint16, error) {
	if len(s.values) <= s.base() {
		return nil, fmt.Errorf("evaluation stack underflow: %w", errStack)
	}
	return &s.values[len(s.values)-1], nil
}

func (s *Stack) base() int {
	if len(s.frames) == 0 {
		return 0
	}
	return s.frames[len(s.frames)-1].StackBase
}

func (s *Stack) pushFrame(f Frame) error {
	if len(s.frames) >= s.maxFrames {
		return fmt.Errorf("call depth exceeds %d frames: %w", s.maxFrames, errStack)
	}
	s.frames = append(s.frames, f)
	return nil
}

// popFrame discards the frame's stack segment and returns the frame.
func (s *Stack) popFrame() (Frame, error) {
	if len(s.frames) == 0 {
		return Frame{}, fmt.Errorf("return with no active frame: %w", errStack)
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	s.values = s.values[:f.StackBase]
	return f, nil
}

func (s *Stack) frame() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, fmt.Errorf("local variable access outside any routine: %w", errStack)
	}
	return &s.frames[len(s.frames)-1], nil
}

func (s *Stack) local(n byte) (*uint16, error) {
	f, err := s.frame()
	if err != nil {
		return nil, err
	}
	if n < 1 || n > f.NumLocals {
		return nil, fmt.Errorf("local %d of %d: %w", n, f.NumLocals, errStack)
	}
	return &f.Locals[n-1], nil
}

func (s *Stack) reset() {
	s.values = s.values[:0]
	s.frames = s.frames[:0]
}

func (s *Stack) depth() int      { return len(s.values) }
func (s *Stack) frameCount() int { return len(s.frames) }
