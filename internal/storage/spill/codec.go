package spill

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/calyxdb/calyx/internal/sql/types"
)

// On-disk row layout: uint16 value count, then one tagged value at a time.
// The layout is internal to the process and carries no versioning.
const (
	codecNull  byte = 0
	codecInt   byte = 1
	codecFloat byte = 2
	codecText  byte = 3
	codecBool  byte = 4
	codecTime  byte = 5
)

func writeRow(w io.Writer, values []types.Value) error {
	var scratch [9]byte
	binary.LittleEndian.PutUint16(scratch[:2], uint16(len(values)))
	if _, err := w.Write(scratch[:2]); err != nil {
		return err
	}
	for _, v := range values {
		if err := writeValue(w, scratch[:], v); err != nil {
			return err
		}
	}
	return nil
}

func writeValue(w io.Writer, scratch []byte, v types.Value) error {
	if v.IsNull() {
		scratch[0] = codecNull
		_, err := w.Write(scratch[:1])
		return err
	}
	switch val := v.Data.(type) {
	case int64:
		scratch[0] = codecInt
		binary.LittleEndian.PutUint64(scratch[1:9], uint64(val))
		_, err := w.Write(scratch[:9])
		return err
	case float64:
		scratch[0] = codecFloat
		binary.LittleEndian.PutUint64(scratch[1:9], math.Float64bits(val))
		_, err := w.Write(scratch[:9])
		return err
	case string:
		scratch[0] = codecText
		binary.LittleEndian.PutUint32(scratch[1:5], uint32(len(val)))
		if _, err := w.Write(scratch[:5]); err != nil {
			return err
		}
		_, err := io.WriteString(w, val)
		return err
	case bool:
		scratch[0] = codecBool
		scratch[1] = 0
		if val {
			scratch[1] = 1
		}
		_, err := w.Write(scratch[:2])
		return err
	case time.Time:
		scratch[0] = codecTime
		binary.LittleEndian.PutUint64(scratch[1:9], uint64(val.UnixNano()))
		_, err := w.Write(scratch[:9])
		return err
	default:
		return fmt.Errorf("unsupported type for spill serialization: %T", v.Data)
	}
}

// readRow reads one row, returning (nil, nil) at a clean end of stream.
func readRow(r io.Reader) ([]types.Value, error) {
	var scratch [8]byte
	if _, err := io.ReadFull(r, scratch[:2]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(scratch[:2]))
	values := make([]types.Value, n)
	for i := range values {
		v, err := readValue(r, scratch[:])
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func readValue(r io.Reader, scratch []byte) (types.Value, error) {
	if _, err := io.ReadFull(r, scratch[:1]); err != nil {
		return types.Value{}, err
	}
	switch scratch[0] {
	case codecNull:
		return types.NewNullValue(), nil
	case codecInt:
		if _, err := io.ReadFull(r, scratch[:8]); err != nil {
			return types.Value{}, err
		}
		return types.NewIntegerValue(int64(binary.LittleEndian.Uint64(scratch[:8]))), nil
	case codecFloat:
		if _, err := io.ReadFull(r, scratch[:8]); err != nil {
			return types.Value{}, err
		}
		return types.NewFloatValue(math.Float64frombits(binary.LittleEndian.Uint64(scratch[:8]))), nil
	case codecText:
		if _, err := io.ReadFull(r, scratch[:4]); err != nil {
			return types.Value{}, err
		}
		buf := make([]byte, binary.LittleEndian.Uint32(scratch[:4]))
		if _, err := io.ReadFull(r, buf); err != nil {
			return types.Value{}, err
		}
		return types.NewTextValue(string(buf)), nil
	case codecBool:
		if _, err := io.ReadFull(r, scratch[:1]); err != nil {
			return types.Value{}, err
		}
		return types.NewBooleanValue(scratch[0] == 1), nil
	case codecTime:
		if _, err := io.ReadFull(r, scratch[:8]); err != nil {
			return types.Value{}, err
		}
		return types.NewTimestampValue(time.Unix(0, int64(binary.LittleEndian.Uint64(scratch[:8]))).UTC()), nil
	default:
		return types.Value{}, fmt.Errorf("unsupported spill value tag: %d", scratch[0])
	}
}
