package exchange

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// codecVersion prefixes every encoded state.
const codecVersion = 1

var errTruncated = errors.New("exchange state truncated")

// MarshalBinary encodes the state deterministically. Pairs appear in
// (base, quote) order, bids before asks, orders in matching order; all
// integers are fixed-width big-endian.
func (s *State) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecVersion)
	writeUint64(&buf, s.NextID)

	pairs := s.Pairs()
	writeUint32(&buf, uint32(len(pairs)))
	for _, p := range pairs {
		writeString(&buf, p.Base)
		writeString(&buf, p.Quote)
		pb := s.pairs[p]
		for _, b := range []*book{pb.bids, pb.asks} {
			orders := b.orders()
			writeUint32(&buf, uint32(len(orders)))
			for _, o := range orders {
				writeOrder(&buf, o)
			}
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces s with the decoded state.
func (s *State) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return errTruncated
	}
	if version != codecVersion {
		return fmt.Errorf("unsupported exchange state version %d", version)
	}

	out := NewState()
	if out.NextID, err = readUint64(r); err != nil {
		return err
	}
	npairs, err := readUint32(r)
	if err != nil {
		return err
	}

	var j journal
	for i := uint32(0); i < npairs; i++ {
		var p Pair
		if p.Base, err = readString(r); err != nil {
			return err
		}
		if p.Quote, err = readString(r); err != nil {
			return err
		}
		if p.Base == p.Quote {
			return fmt.Errorf("pair %s: base equals quote", p)
		}
		for _, side := range []Side{Buy, Sell} {
			n, err := readUint32(r)
			if err != nil {
				return err
			}
			for k := uint32(0); k < n; k++ {
				o, err := readOrder(r, p)
				if err != nil {
					return err
				}
				if o.Side != side {
					return fmt.Errorf("order %d: side %s stored under %s", o.ID, o.Side, side)
				}
				if o.ID >= out.NextID {
					return fmt.Errorf("order %d: id not below next id %d", o.ID, out.NextID)
				}
				if _, dup := out.index[o.ID]; dup {
					return fmt.Errorf("order %d: duplicate id", o.ID)
				}
				out.insert(&j, o)
			}
		}
	}
	if r.Len() != 0 {
		return fmt.Errorf("exchange state has %d trailing bytes", r.Len())
	}

	*s = *out
	return nil
}

// Hash is keccak256 of the binary encoding.
func (s *State) Hash() [32]byte {
	data, _ := s.MarshalBinary()
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(out[:0])
	return out
}

func writeOrder(w *bytes.Buffer, o *Order) {
	writeUint64(w, o.ID)
	w.Write(o.Creator[:])
	w.WriteByte(byte(o.Side))
	w.WriteByte(byte(o.Kind))
	w.WriteByte(byte(o.TimeInForce))
	amount := o.Amount.Bytes32()
	w.Write(amount[:])
	price := o.Price.Bytes32()
	w.Write(price[:])
}

func readOrder(r *bytes.Reader, p Pair) (*Order, error) {
	o := &Order{Base: p.Base, Quote: p.Quote}
	var err error
	if o.ID, err = readUint64(r); err != nil {
		return nil, err
	}
	var addr [common.AddressLength]byte
	if _, err := io.ReadFull(r, addr[:]); err != nil {
		return nil, errTruncated
	}
	o.Creator = common.Address(addr)

	var tags [3]byte
	if _, err := io.ReadFull(r, tags[:]); err != nil {
		return nil, errTruncated
	}
	o.Side, o.Kind, o.TimeInForce = Side(tags[0]), OrderKind(tags[1]), TimeInForce(tags[2])
	if !o.Side.Valid() || !o.TimeInForce.Valid() || o.Kind != Limit {
		return nil, fmt.Errorf("order %d: invalid tags %v", o.ID, tags)
	}

	var word [32]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, errTruncated
	}
	o.Amount.SetBytes32(word[:])
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, errTruncated
	}
	o.Price.SetBytes32(word[:])
	if o.Amount.IsZero() || o.Price.IsZero() {
		return nil, fmt.Errorf("order %d: zero amount or price", o.ID)
	}
	var notional uint256.Int
	if _, overflow := notional.MulOverflow(&o.Amount, &o.Price); overflow {
		return nil, fmt.Errorf("order %d: amount*price overflows", o.ID)
	}
	return o, nil
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeString(w *bytes.Buffer, s string) {
	writeUint32(w, uint32(len(s)))
	w.WriteString(s)
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errTruncated
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errTruncated
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", errTruncated
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errTruncated
	}
	return string(b), nil
}
