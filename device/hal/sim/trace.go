package sim

import (
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Kind names a bus transaction or signal.
type Kind string

// Transaction kinds.
const (
	KindReset   Kind = "reset"
	KindSuspend Kind = "suspend"
	KindResume  Kind = "resume"
	KindSOF     Kind = "sof"
	KindSetup   Kind = "setup"
	KindIn      Kind = "in"
	KindOut     Kind = "out"
)

// Record is one traced transaction. Integer keys keep the CBOR encoding
// compact.
type Record struct {
	Seq       uint32 `cbor:"1,keyasint"`
	Kind      Kind   `cbor:"2,keyasint"`
	Address   uint8  `cbor:"3,keyasint"`
	Endpoint  uint8  `cbor:"4,keyasint"`
	Data      []byte `cbor:"5,keyasint,omitempty"`
	Handshake string `cbor:"6,keyasint,omitempty"`
	Error     string `cbor:"7,keyasint,omitempty"`
}

// Trace collects the transactions a [Host] performs.
type Trace struct {
	mutex   sync.Mutex
	records []Record
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

func (t *Trace) add(r Record) {
	if t == nil {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	r.Seq = uint32(len(t.records))
	if r.Data != nil {
		r.Data = append([]byte(nil), r.Data...)
	}
	t.records = append(t.records, r)
}

// Records returns a copy of the recorded transactions.
func (t *Trace) Records() []Record {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]Record(nil), t.records...)
}

// Len returns the number of recorded transactions.
func (t *Trace) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.records)
}

// WriteTo writes the trace to w as a CBOR array of records.
func (t *Trace) WriteTo(w io.Writer) (int64, error) {
	data, err := cbor.Marshal(t.Records())
	if err != nil {
		return 0, fmt.Errorf("encode trace: %w", err)
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadTrace decodes a trace written by [Trace.WriteTo].
func ReadTrace(r io.Reader) ([]Record, error) {
	var records []Record
	if err := cbor.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return records, nil
}
