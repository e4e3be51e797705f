package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// EncodingMsgpackZstd tags coordinate blobs written by EncodeCoordinates.
const EncodingMsgpackZstd = "msgpack+zstd"

var (
	blobEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	blobDecoder, _ = zstd.NewReader(nil)
)

type coordinateBlob struct {
	Rows int       `msgpack:"r"`
	Cols int       `msgpack:"c"`
	Data []float64 `msgpack:"d"`
}

// EncodeCoordinates packs a dense matrix row-major with msgpack and
// compresses it with zstd.
func EncodeCoordinates(m *mat.Dense) ([]byte, error) {
	rows, cols := m.Dims()
	blob := coordinateBlob{Rows: rows, Cols: cols, Data: make([]float64, 0, rows*cols)}
	for i := range rows {
		blob.Data = append(blob.Data, m.RawRowView(i)...)
	}
	packed, err := msgpack.Marshal(&blob)
	if err != nil {
		return nil, fmt.Errorf("pack coordinates: %w", err)
	}
	return blobEncoder.EncodeAll(packed, nil), nil
}

func DecodeCoordinates(b []byte) (*mat.Dense, error) {
	packed, err := blobDecoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress coordinates: %w", err)
	}
	var blob coordinateBlob
	if err := msgpack.Unmarshal(packed, &blob); err != nil {
		return nil, fmt.Errorf("unpack coordinates: %w", err)
	}
	if blob.Rows < 1 || blob.Cols < 1 || len(blob.Data) != blob.Rows*blob.Cols {
		return nil, fmt.Errorf("corrupt coordinates: %d values for %dx%d", len(blob.Data), blob.Rows, blob.Cols)
	}
	return mat.NewDense(blob.Rows, blob.Cols, blob.Data), nil
}
