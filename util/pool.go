package util

import "github.com/bytedance/gopkg/lang/mcache"

// GetBuf returns a buffer of exactly size bytes from the size-class
// cache.  Its contents are not zeroed.  Callers must return it with
// [PutBuf] when finished.
func GetBuf(size int) []byte {
	return mcache.Malloc(size)
}

// PutBuf returns a buffer to the cache for reuse.
func PutBuf(buf []byte) {
	if buf == nil {
		return
	}
	mcache.Free(buf)
}
