package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a fault by how the view recovers from it
type Kind int

const (
	// Decode: malformed snapshot, discarded, previous one stays displayed
	Decode Kind = iota
	// Transport: remote call rejected or timed out, next tick retries
	Transport
	// Invariant: rejected locally before any remote call
	Invariant
)

// Sentinels matched by errors.Is against any *Fault of the same kind
var (
	ErrDecode    = errors.New("decode fault")
	ErrTransport = errors.New("transport fault")
	ErrInvariant = errors.New("invariant violation")
)

func (k Kind) String() string {
	switch k {
	case Decode:
		return "decode"
	case Transport:
		return "transport"
	case Invariant:
		return "invariant"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case Decode:
		return ErrDecode
	case Transport:
		return ErrTransport
	default:
		return ErrInvariant
	}
}

// Fault is an error tagged with its Kind and the operation that raised it
type Fault struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind.sentinel(), f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Is matches the sentinel of the fault's kind
func (f *Fault) Is(target error) bool {
	return target == f.Kind.sentinel()
}

// Decodef builds a decode fault for op
func Decodef(op, format string, args ...interface{}) error {
	return &Fault{Kind: Decode, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transportf wraps err as a transport fault for op
func Transportf(op string, err error) error {
	return &Fault{Kind: Transport, Op: op, Err: err}
}

// Invariantf builds an invariant violation for op
func Invariantf(op, format string, args ...interface{}) error {
	return &Fault{Kind: Invariant, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first *Fault in err's chain
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}
