package selfplay

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/evanburke/chessrl/internal/rlenv"
)

// maskBytes is the bitpacked byte-width of a next_mask record:
// ceil(ActionSpace/8).
const maskBytes = (rlenv.ActionSpace + 7) / 8

// recordLen is the fixed payload size of one wire record: state,
// action, reward, next_state, bitpacked next_mask, done.
const recordLen = rlenv.StateLen*4 + 2 + 4 + rlenv.StateLen*4 + maskBytes + 1

// WriteTransitionBatch writes one game's transitions to path (creating
// or truncating it) as a
// stream of length-prefixed fixed-size records, per the worker wire
// protocol: each record is
// (state:f32[I], action:u16, reward:f32, next_state:f32[I],
// next_mask:u8[A/8] bitpacked, done:u8), preceded by a uint32 length.
func WriteTransitionBatch(path string, transitions []rlenv.Transition) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("selfplay: create batch file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	buf := make([]byte, recordLen)
	var lenPrefix [4]byte

	for _, t := range transitions {
		if err := encodeRecord(buf, t); err != nil {
			return fmt.Errorf("selfplay: encode transition: %w", err)
		}
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(recordLen))
		if _, err := w.Write(lenPrefix[:]); err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}

func encodeRecord(buf []byte, t rlenv.Transition) error {
	if len(t.State) != rlenv.StateLen || len(t.NextState) != rlenv.StateLen {
		return fmt.Errorf("state length mismatch: want %d", rlenv.StateLen)
	}
	off := 0
	for _, v := range t.State {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	binary.LittleEndian.PutUint16(buf[off:], uint16(t.Action))
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(t.Reward))
	off += 4
	for _, v := range t.NextState {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	maskOff := off
	for i := range buf[maskOff : maskOff+maskBytes] {
		buf[maskOff+i] = 0
	}
	for i, v := range t.NextMask {
		if v != 0 {
			buf[maskOff+i/8] |= 1 << uint(i%8)
		}
	}
	off = maskOff + maskBytes
	if t.Done {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	return nil
}

// ReadTransitionBatch reads a file written by WriteTransitionBatch. A
// truncated trailing record (partial write from a killed worker) is
// silently dropped rather than treated as an error, since a worker
// timeout can land mid-write.
func ReadTransitionBatch(path string) ([]rlenv.Transition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("selfplay: open batch file %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []rlenv.Transition
	var lenPrefix [4]byte
	buf := make([]byte, recordLen)

	for {
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			if err == io.EOF {
				break
			}
			break // truncated length prefix: stop, keep what was read
		}
		n := binary.LittleEndian.Uint32(lenPrefix[:])
		if n != uint32(recordLen) {
			break // corrupt or foreign record, stop reading
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			break // truncated record
		}
		t, err := decodeRecord(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeRecord(buf []byte) (rlenv.Transition, error) {
	off := 0
	state := make([]float32, rlenv.StateLen)
	for i := range state {
		state[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	action := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	reward := math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	nextState := make([]float32, rlenv.StateLen)
	for i := range nextState {
		nextState[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	maskOff := off
	mask := make([]byte, rlenv.ActionSpace)
	for i := range mask {
		if buf[maskOff+i/8]&(1<<uint(i%8)) != 0 {
			mask[i] = 1
		}
	}
	off = maskOff + maskBytes
	done := buf[off] != 0

	return rlenv.Transition{
		State:     state,
		Action:    action,
		Reward:    reward,
		NextState: nextState,
		NextMask:  mask,
		Done:      done,
	}, nil
}
