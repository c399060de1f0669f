package converter

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/infrastructure/pool"
	"github.com/TFMV/ignis/pkg/models"
)

var ipcBuffers = pool.NewBufferPool()

// ipcSizeHint guesses the encoded size of rec.
func ipcSizeHint(rec arrow.Record) int {
	return 1024 + int(rec.NumRows()*rec.NumCols())*16
}

// EncodeIPC serialises rec as a single-record Arrow IPC stream.
func EncodeIPC(rec arrow.Record, mem memory.Allocator) ([]byte, error) {
	buf := ipcBuffers.Get(ipcSizeHint(rec))
	defer ipcBuffers.Put(buf)

	w := ipc.NewWriter(buf, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to write record")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to close IPC writer")
	}
	return bytes.Clone(buf.Bytes()), nil
}

// DecodeIPCFrame reads an IPC stream produced by EncodeIPC back into a frame.
func DecodeIPCFrame(data []byte, mem memory.Allocator) (*models.ResultFrame, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTranslation, "failed to open IPC stream")
	}
	defer rdr.Release()

	if !rdr.Next() {
		if err := rdr.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeTranslation, "failed to read IPC stream")
		}
		return nil, errors.New(errors.CodeTranslation, "IPC stream holds no record")
	}
	return ToFrame(rdr.Record())
}
