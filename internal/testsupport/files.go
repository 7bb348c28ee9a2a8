package testsupport

import (
	"bytes"
	"fmt"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

// SampleFile returns an in-memory JPEG-typed file whose bytes are unique to
// name. size <= 0 yields a short payload.
func SampleFile(name string, size int) scan.File {
	payload := []byte(fmt.Sprintf("image:%s:", name))
	if size > len(payload) {
		payload = append(payload, bytes.Repeat([]byte{0x42}, size-len(payload))...)
	}
	return scan.NewFile(name+".jpg", "image/jpeg", payload)
}
