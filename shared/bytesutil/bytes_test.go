package bytesutil_test

import (
	"testing"

	"github.com/Dhenz14/HivePoA-sub000/shared/bytesutil"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
)

func TestToBytes32(t *testing.T) {
	tests := []struct {
		a []byte
		b [32]byte
	}{
		{nil, [32]byte{}},
		{[]byte{}, [32]byte{}},
		{[]byte{1}, [32]byte{1}},
		{[]byte{1, 2, 3}, [32]byte{1, 2, 3}},
	}
	for _, tt := range tests {
		b := bytesutil.ToBytes32(tt.a)
		assert.DeepEqual(t, tt.b, b)
	}
}

func TestUint64ToBytes_RoundTrip(t *testing.T) {
	for i := uint64(0); i < 10000; i++ {
		b := bytesutil.Uint64ToBytesBigEndian(i)
		if got := bytesutil.BytesToUint64BigEndian(b); got != i {
			t.Error("Round trip did not match original value")
		}
	}
}

func TestBytesToUint64BigEndian_TooShort(t *testing.T) {
	assert.Equal(t, uint64(0), bytesutil.BytesToUint64BigEndian([]byte{1, 2, 3}))
}

func TestSafeCopyBytes(t *testing.T) {
	assert.Equal(t, true, bytesutil.SafeCopyBytes(nil) == nil)

	src := []byte{1, 2, 3}
	cp := bytesutil.SafeCopyBytes(src)
	assert.DeepEqual(t, src, cp)
	cp[0] = 9
	assert.Equal(t, byte(1), src[0], "copy should not alias source")
}

func TestTrunc(t *testing.T) {
	tests := []struct {
		a []byte
		b []byte
	}{
		{[]byte{}, []byte{}},
		{[]byte{1, 2, 3}, []byte{1, 2, 3}},
		{[]byte{1, 2, 3, 4, 5, 6}, []byte{1, 2, 3, 4, 5, 6}},
		{[]byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		assert.DeepEqual(t, tt.b, bytesutil.Trunc(tt.a))
	}
}
