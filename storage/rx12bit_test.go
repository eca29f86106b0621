package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpack12BitWordsRoundTripRX01(t *testing.T) {
	words := make([]uint16, 64)
	for i := range words {
		words[i] = uint16(i*37+5) & 0xFFF
	}
	packed, err := Pack12BitWords(words, 128)
	require.NoError(t, err)
	require.Len(t, packed, 96)

	unpacked, err := Unpack12BitWords(packed, 128)
	require.NoError(t, err)
	require.Equal(t, words, unpacked)
}

func TestPackUnpack12BitWordsRoundTripRX02(t *testing.T) {
	words := make([]uint16, 128)
	for i := range words {
		words[i] = uint16(i*11+3) & 0xFFF
	}
	packed, err := Pack12BitWords(words, 256)
	require.NoError(t, err)
	require.Len(t, packed, 192)

	unpacked, err := Unpack12BitWords(packed, 256)
	require.NoError(t, err)
	require.Equal(t, words, unpacked)
}

func TestPack12BitWordsRejectsWrongCount(t *testing.T) {
	_, err := Pack12BitWords(make([]uint16, 10), 128)
	require.Error(t, err)
}

func TestPack12BitWordsRejectsBadSectorSize(t *testing.T) {
	_, err := Pack12BitWords(make([]uint16, 64), 512)
	require.Error(t, err)
}

func TestUnpack12BitWordsRejectsShortBuffer(t *testing.T) {
	_, err := Unpack12BitWords(make([]byte, 10), 128)
	require.Error(t, err)
}

func TestUnpack12BitWordsRejectsBadSectorSize(t *testing.T) {
	_, err := Unpack12BitWords(make([]byte, 96), 512)
	require.Error(t, err)
}

func TestRX12BitBlockOffsetsCountsMatchSectorsPerBlock(t *testing.T) {
	rx01 := RX12BitBlockOffsets(0, 128)
	require.Len(t, rx01, BlockSize/128)

	rx02 := RX12BitBlockOffsets(0, 256)
	require.Len(t, rx02, BlockSize/256)
}

func TestRX12BitBlockOffsetsDistinctWithinBlock(t *testing.T) {
	offsets := RX12BitBlockOffsets(0, 128)
	seen := map[int64]bool{}
	for _, off := range offsets {
		require.False(t, seen[off], "duplicate offset %d", off)
		seen[off] = true
	}
}
