package superblock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuperblockRoundTripsLegacy(t *testing.T) {
	requireT := require.New(t)

	d := Data{
		NonceInfo:         [32]byte{1, 2, 3},
		Nonce:             0xdeadbeef,
		Version:           VersionLegacy,
		BlockSize:         4096,
		NumIndexes:        1,
		MaxSaves:          2,
		OpenChapterBlocks: 3,
		PageMapBlocks:     5,
	}

	buf, err := d.Encode()
	requireT.NoError(err)
	requireT.Len(buf, fixedSize)

	decoded, err := Decode(buf)
	requireT.NoError(err)
	requireT.Equal(d, decoded)
}

func TestSuperblockRoundTripsShifted(t *testing.T) {
	requireT := require.New(t)

	d := Data{
		Nonce:             42,
		Version:           VersionShifted,
		BlockSize:         4096,
		NumIndexes:        1,
		MaxSaves:          2,
		OpenChapterBlocks: 1,
		PageMapBlocks:     1,
		VolumeOffset:      10,
		StartOffset:       2,
	}

	buf, err := d.Encode()
	requireT.NoError(err)
	requireT.Len(buf, fixedSize+shiftedExtra)

	decoded, err := Decode(buf)
	requireT.NoError(err)
	requireT.Equal(d, decoded)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	requireT := require.New(t)

	buf := make([]byte, fixedSize)
	_, err := Decode(buf)
	requireT.Error(err)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	requireT := require.New(t)

	d := Data{Version: VersionLegacy, BlockSize: 4096}
	buf, err := d.Encode()
	requireT.NoError(err)
	buf[72] = 99 // version field follows magic(32)+nonce_info(32)+nonce(8)

	_, err = Decode(buf)
	requireT.Error(err)
}

func TestConvertUpgradesToShifted(t *testing.T) {
	requireT := require.New(t)

	d := Data{Version: VersionLegacy, BlockSize: 4096}
	converted := d.Convert(7, 1)

	requireT.Equal(VersionShifted, converted.Version)
	requireT.Equal(uint64(7), converted.VolumeOffset)
	requireT.Equal(uint64(1), converted.StartOffset)
}
