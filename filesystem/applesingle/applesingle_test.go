package applesingle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := &File{
		Data:     []byte{0xDE, 0xAD, 0xBE, 0xEF},
		Resource: []byte{0x01, 0x02, 0x03},
		ProDOSInfo: &ProDOSFileInfo{
			Access:   0xC3,
			FileType: 0x06,
			AuxType:  0x2000,
		},
	}
	buf := Encode(f)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, f.Data, got.Data)
	require.Equal(t, f.Resource, got.Resource)
	require.NotNil(t, got.ProDOSInfo)
	require.Equal(t, *f.ProDOSInfo, *got.ProDOSInfo)
}

func TestEncodeWithoutResourceOrProDOSInfo(t *testing.T) {
	f := &File{Data: []byte("plain data fork")}
	buf := Encode(f)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, f.Data, got.Data)
	require.Nil(t, got.Resource)
	require.Nil(t, got.ProDOSInfo)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 26)
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x05, 0x16})
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedEntryTable(t *testing.T) {
	buf := Encode(&File{Data: []byte("x")})
	_, err := Decode(buf[:30]) // header claims an entry the buffer doesn't hold
	require.Error(t, err)
}

func TestEncodeEmptyDataFork(t *testing.T) {
	buf := Encode(&File{})
	got, err := Decode(buf)
	require.NoError(t, err)
	require.Empty(t, got.Data)
}
