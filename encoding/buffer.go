// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoding

import (
	"encoding/binary"
	"math"

	"github.com/apache/arrow/go/v11/arrow/decimal128"
	"github.com/spirit-labs/docfetch/common"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/types"
)

// All multi byte values are little-endian. Strings and byte slices are prefixed with their length as a uint32.

func AppendUint32(buff []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buff, v)
}

func AppendUint64(buff []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buff, v)
}

func AppendFloat64(buff []byte, v float64) []byte {
	return AppendUint64(buff, math.Float64bits(v))
}

func AppendBool(buff []byte, v bool) []byte {
	if v {
		return append(buff, 1)
	}
	return append(buff, 0)
}

func AppendString(buff []byte, v string) []byte {
	buff = AppendUint32(buff, uint32(len(v)))
	return append(buff, v...)
}

func AppendBytes(buff []byte, v []byte) []byte {
	buff = AppendUint32(buff, uint32(len(v)))
	return append(buff, v...)
}

// AppendDecimal writes the 128 bit value only, precision and scale travel with the column type.
func AppendDecimal(buff []byte, v types.Decimal) []byte {
	buff = AppendUint64(buff, v.Num.LowBits())
	return AppendUint64(buff, uint64(v.Num.HighBits()))
}

/*
Reader reads values written by the Append functions. Reads are bounds checked: the first read past the end of the
buffer records an error and every read from then on returns a zero value. Callers decode a whole message and check Err
once at the end.
*/
type Reader struct {
	buff []byte
	off  int
	err  error
}

func NewReader(buff []byte) *Reader {
	return &Reader{buff: buff}
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buff)-r.off < n {
		r.err = errors.Errorf("buffer too short: %d bytes needed at offset %d, %d available", n, r.off,
			len(r.buff)-r.off)
		return nil
	}
	b := r.buff[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadUint8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadBool() bool {
	return r.ReadUint8() == 1
}

func (r *Reader) ReadUint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadUint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadFloat64() float64 {
	return math.Float64frombits(r.ReadUint64())
}

// ReadString does not copy, the returned string shares memory with the buffer.
func (r *Reader) ReadString() string {
	return common.ByteSliceToStringZeroCopy(r.ReadBytes())
}

// ReadBytes does not copy.
func (r *Reader) ReadBytes() []byte {
	l := r.ReadUint32()
	if r.err != nil {
		return nil
	}
	return r.next(int(l))
}

func (r *Reader) ReadDecimal(decType *types.DecimalType) types.Decimal {
	lo := r.ReadUint64()
	hi := r.ReadUint64()
	return types.Decimal{
		Num:       decimal128.New(int64(hi), lo),
		Precision: decType.Precision,
		Scale:     decType.Scale,
	}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buff) - r.off
}

func (r *Reader) Err() error {
	return r.err
}
