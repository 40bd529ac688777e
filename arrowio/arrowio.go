// Package arrowio converts attention score tensors and masks between bodkin
// buffers and Arrow record batches, so launches can source their inputs from
// columnar tooling and hand results back without bespoke framing. Shapes
// travel in schema metadata; values travel flat and row-major in a single
// column.
package arrowio

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"

	bodkin "github.com/23skdu/longbow-bodkin"
)

const (
	scoresColumn = "scores"
	maskColumn   = "mask"

	metaBatches    = "batches"
	metaHeads      = "heads"
	metaQueryLen   = "query_len"
	metaKeyLen     = "key_len"
	metaPadBatches = "pad_batches"
)

// Tensor pairs a flat row-major score buffer with its 4-D shape.
type Tensor struct {
	Batches  int
	Heads    int
	QueryLen int
	KeyLen   int
	Values   bodkin.Buffer
}

// Rows reports how many softmax rows the tensor holds.
func (t Tensor) Rows() int {
	return t.Batches * t.Heads * t.QueryLen
}

// NewRecord encodes t as a single-column record batch allocated from mem.
// The caller owns the returned record and must Release it.
func NewRecord(t Tensor, mem memory.Allocator) (arrow.Record, error) {
	if t.Batches <= 0 || t.Heads <= 0 || t.QueryLen <= 0 || t.KeyLen <= 0 {
		return nil, fmt.Errorf("arrowio: invalid shape [%d, %d, %d, %d]",
			t.Batches, t.Heads, t.QueryLen, t.KeyLen)
	}
	if want := t.Rows() * t.KeyLen; t.Values.Len() != want {
		return nil, fmt.Errorf("arrowio: buffer holds %d values, shape needs %d", t.Values.Len(), want)
	}

	md := arrow.NewMetadata(
		[]string{metaBatches, metaHeads, metaQueryLen, metaKeyLen},
		[]string{
			strconv.Itoa(t.Batches),
			strconv.Itoa(t.Heads),
			strconv.Itoa(t.QueryLen),
			strconv.Itoa(t.KeyLen),
		},
	)

	var (
		col   arrow.Array
		field arrow.Field
	)
	switch t.Values.DType() {
	case bodkin.Float32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.AppendValues(t.Values.Float32s(), nil)
		col = b.NewFloat32Array()
		field = arrow.Field{Name: scoresColumn, Type: arrow.PrimitiveTypes.Float32}
	case bodkin.Float16:
		b := array.NewFloat16Builder(mem)
		defer b.Release()
		b.AppendValues(t.Values.Float16s(), nil)
		col = b.NewFloat16Array()
		field = arrow.Field{Name: scoresColumn, Type: arrow.FixedWidthTypes.Float16}
	default:
		return nil, fmt.Errorf("arrowio: unsupported dtype %s", t.Values.DType())
	}
	defer col.Release()

	schema := arrow.NewSchema([]arrow.Field{field}, &md)
	return array.NewRecord(schema, []arrow.Array{col}, int64(col.Len())), nil
}

// TensorFromRecord decodes a record produced by NewRecord. Values are copied
// out, so the record may be released as soon as the call returns.
func TensorFromRecord(rec arrow.Record) (Tensor, error) {
	var (
		t   Tensor
		err error
	)
	if t.Batches, err = metaInt(rec.Schema(), metaBatches); err != nil {
		return Tensor{}, err
	}
	if t.Heads, err = metaInt(rec.Schema(), metaHeads); err != nil {
		return Tensor{}, err
	}
	if t.QueryLen, err = metaInt(rec.Schema(), metaQueryLen); err != nil {
		return Tensor{}, err
	}
	if t.KeyLen, err = metaInt(rec.Schema(), metaKeyLen); err != nil {
		return Tensor{}, err
	}

	col, err := denseColumn(rec, scoresColumn)
	if err != nil {
		return Tensor{}, err
	}
	if want := t.Rows() * t.KeyLen; col.Len() != want {
		return Tensor{}, fmt.Errorf("arrowio: column holds %d values, shape needs %d", col.Len(), want)
	}

	switch arr := col.(type) {
	case *array.Float32:
		vals := make([]float32, arr.Len())
		copy(vals, arr.Float32Values())
		t.Values = bodkin.NewFloat32Buffer(vals)
	case *array.Float16:
		vals := make([]float16.Num, arr.Len())
		copy(vals, arr.Values())
		t.Values = bodkin.NewFloat16Buffer(vals)
	default:
		return Tensor{}, fmt.Errorf("arrowio: unsupported column type %s", col.DataType())
	}
	return t, nil
}

// NewMaskRecord encodes a suppression mask in broadcast (padBatches 1) or
// per-batch layout. The caller owns the returned record and must Release it.
func NewMaskRecord(mask []uint8, padBatches, queryLen, keyLen int, mem memory.Allocator) (arrow.Record, error) {
	if padBatches <= 0 || queryLen <= 0 || keyLen <= 0 {
		return nil, fmt.Errorf("arrowio: invalid mask shape [%d, %d, %d]", padBatches, queryLen, keyLen)
	}
	if want := padBatches * queryLen * keyLen; len(mask) != want {
		return nil, fmt.Errorf("arrowio: mask holds %d bytes, shape needs %d", len(mask), want)
	}

	md := arrow.NewMetadata(
		[]string{metaPadBatches, metaQueryLen, metaKeyLen},
		[]string{strconv.Itoa(padBatches), strconv.Itoa(queryLen), strconv.Itoa(keyLen)},
	)
	b := array.NewUint8Builder(mem)
	defer b.Release()
	b.AppendValues(mask, nil)
	col := b.NewUint8Array()
	defer col.Release()

	schema := arrow.NewSchema([]arrow.Field{{Name: maskColumn, Type: arrow.PrimitiveTypes.Uint8}}, &md)
	return array.NewRecord(schema, []arrow.Array{col}, int64(col.Len())), nil
}

// MaskFromRecord decodes a record produced by NewMaskRecord, returning the
// mask bytes and their pad_batches, query_len, key_len shape. Bytes are
// copied out of the record.
func MaskFromRecord(rec arrow.Record) (mask []uint8, padBatches, queryLen, keyLen int, err error) {
	if padBatches, err = metaInt(rec.Schema(), metaPadBatches); err != nil {
		return nil, 0, 0, 0, err
	}
	if queryLen, err = metaInt(rec.Schema(), metaQueryLen); err != nil {
		return nil, 0, 0, 0, err
	}
	if keyLen, err = metaInt(rec.Schema(), metaKeyLen); err != nil {
		return nil, 0, 0, 0, err
	}

	col, err := denseColumn(rec, maskColumn)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	arr, ok := col.(*array.Uint8)
	if !ok {
		return nil, 0, 0, 0, fmt.Errorf("arrowio: %q column is %s, want uint8", maskColumn, col.DataType())
	}
	if want := padBatches * queryLen * keyLen; arr.Len() != want {
		return nil, 0, 0, 0, fmt.Errorf("arrowio: column holds %d bytes, shape needs %d", arr.Len(), want)
	}

	mask = make([]uint8, arr.Len())
	copy(mask, arr.Uint8Values())
	for i, v := range mask {
		if v > 1 {
			return nil, 0, 0, 0, fmt.Errorf("arrowio: mask byte %d = %d, want 0 or 1", i, v)
		}
	}
	return mask, padBatches, queryLen, keyLen, nil
}

func denseColumn(rec arrow.Record, name string) (arrow.Array, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) != 1 {
		return nil, fmt.Errorf("arrowio: record needs exactly one %q column, found %d", name, len(idx))
	}
	col := rec.Column(idx[0])
	if col.NullN() != 0 {
		return nil, fmt.Errorf("arrowio: %q column has %d nulls, want dense values", name, col.NullN())
	}
	return col, nil
}

func metaInt(schema *arrow.Schema, key string) (int, error) {
	md := schema.Metadata()
	idx := md.FindKey(key)
	if idx < 0 {
		return 0, fmt.Errorf("arrowio: schema metadata missing %q", key)
	}
	n, err := strconv.Atoi(md.Values()[idx])
	if err != nil {
		return 0, fmt.Errorf("arrowio: metadata %q: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("arrowio: metadata %q = %d, want positive", key, n)
	}
	return n, nil
}
