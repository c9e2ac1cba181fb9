package common

import "unsafe"

func ByteSliceCopy(byteSlice []byte) []byte {
	copied := make([]byte, len(byteSlice))
	copy(copied, byteSlice)
	return copied
}

func ByteSliceToStringZeroCopy(bs []byte) string {
	lbs := len(bs)
	if lbs == 0 {
		return ""
	}
	return unsafe.String(&bs[0], lbs)
}
