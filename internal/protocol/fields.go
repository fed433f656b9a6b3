package protocol

// Wire types used by the payload encoding. Only varint and length-delimited
// appear in the catalogue.
const (
	wireVarint          = 0
	wireLengthDelimited = 2
)

// fieldWriter accumulates protobuf-style fields. Callers emit fields in
// ascending field-number order and skip fields holding their default value;
// the writer itself enforces neither, it only does the byte bookkeeping.
type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) tag(field, wire int) {
	w.buf = AppendUvarint(w.buf, uint64(field)<<3|uint64(wire))
}

// uvarint emits an unsigned varint field unless v is zero.
func (w *fieldWriter) uvarint(field int, v uint64) {
	if v == 0 {
		return
	}
	w.tag(field, wireVarint)
	w.buf = AppendUvarint(w.buf, v)
}

// varint emits a signed varint field (two's complement, no zigzag) unless v is zero.
func (w *fieldWriter) varint(field int, v int64) {
	if v == 0 {
		return
	}
	w.tag(field, wireVarint)
	w.buf = AppendVarint(w.buf, v)
}

// boolean emits a bool field unless v is false.
func (w *fieldWriter) boolean(field int, v bool) {
	if !v {
		return
	}
	w.tag(field, wireVarint)
	w.buf = append(w.buf, 1)
}

// str emits a length-prefixed UTF-8 string field unless s is empty.
func (w *fieldWriter) str(field int, s string) {
	if s == "" {
		return
	}
	w.tag(field, wireLengthDelimited)
	w.buf = AppendUvarint(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// bytes emits a length-prefixed byte field unless b is empty.
func (w *fieldWriter) bytes(field int, b []byte) {
	if len(b) == 0 {
		return
	}
	w.tag(field, wireLengthDelimited)
	w.buf = AppendUvarint(w.buf, uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// message emits a nested message field. Empty nested messages are still
// emitted: for repeated fields presence itself carries information.
func (w *fieldWriter) message(field int, payload []byte) {
	w.tag(field, wireLengthDelimited)
	w.buf = AppendUvarint(w.buf, uint64(len(payload)))
	w.buf = append(w.buf, payload...)
}

// fieldReader walks protobuf-style fields, tolerating unknown field numbers
// by skipping them according to wire type. The first error sticks; callers
// check Err() once after the loop.
type fieldReader struct {
	data []byte
	off  int
	err  error
}

func newFieldReader(payload []byte) *fieldReader {
	return &fieldReader{data: payload}
}

// next advances to the next field and returns its number and wire type.
// ok is false at end of payload or after an error.
func (r *fieldReader) next() (field, wire int, ok bool) {
	if r.err != nil || r.off >= len(r.data) {
		return 0, 0, false
	}
	key, n, err := r.readUvarint()
	if err != nil {
		r.fail(err)
		return 0, 0, false
	}
	_ = n
	return int(key >> 3), int(key & 0x7), true
}

func (r *fieldReader) readUvarint() (uint64, int, error) {
	v, n, err := Uvarint(r.data[r.off:])
	if err != nil {
		if err == ErrNeedMore {
			err = malformed("truncated varint in payload")
		}
		return 0, 0, err
	}
	r.off += n
	return v, n, nil
}

func (r *fieldReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, _, err := r.readUvarint()
	if err != nil {
		r.fail(err)
		return 0
	}
	return v
}

func (r *fieldReader) varint() int64 {
	return int64(r.uvarint())
}

func (r *fieldReader) boolean() bool {
	return r.uvarint() != 0
}

func (r *fieldReader) bytes() []byte {
	if r.err != nil {
		return nil
	}
	length, _, err := r.readUvarint()
	if err != nil {
		r.fail(err)
		return nil
	}
	end := r.off + int(length)
	if end < r.off || end > len(r.data) {
		r.fail(malformed("length-delimited field extends past payload"))
		return nil
	}
	b := r.data[r.off:end]
	r.off = end
	return b
}

func (r *fieldReader) str() string {
	return string(r.bytes())
}

// skip discards a field of the given wire type.
func (r *fieldReader) skip(wire int) {
	switch wire {
	case wireVarint:
		r.uvarint()
	case wireLengthDelimited:
		r.bytes()
	default:
		r.fail(malformed("unsupported wire type"))
	}
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *fieldReader) Err() error {
	return r.err
}
