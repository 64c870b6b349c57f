package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkdb/objcopy/pkg/tid"
)

func TestIsBlobRecord(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"blob pointer", MakeBlobRecordData(1024), true},
		{"ordinary payload", []byte("regular pickled state"), false},
		{"empty", nil, false},
		{"short prefix", []byte("\x00OB"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBlobRecord(tt.data))
		})
	}
}

func TestSliceRecordIterator(t *testing.T) {
	records := []Record{
		{OID: tid.FromUint64OID(1), Data: []byte("a")},
		{OID: tid.FromUint64OID(2), Data: []byte("b")},
	}
	it := NewSliceRecordIterator(records)
	defer it.Close()

	r1, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, records[0], r1)

	r2, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, records[1], r2)

	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTxnEntry_RecordsReturnsWrappedIterator(t *testing.T) {
	records := []Record{{OID: tid.FromUint64OID(1)}}
	entry := NewTxnEntry(tid.FromUint64(1), StatusOK, nil, nil, nil, NewSliceRecordIterator(records))

	r, err := entry.Records().Next()
	require.NoError(t, err)
	assert.Equal(t, records[0], r)
}
