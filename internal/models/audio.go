package models

import (
	"bytes"
	"io"
)

const DefaultAudioMIMEType = "audio/webm;codecs=opus"

// AudioObject is the assembled recording. It is never mutated after creation.
type AudioObject struct {
	data     []byte
	mimeType string
}

// NewAudioObject concatenates fragments in the given order.
func NewAudioObject(fragments [][]byte, mimeType string) AudioObject {
	size := 0
	for _, f := range fragments {
		size += len(f)
	}

	data := make([]byte, 0, size)
	for _, f := range fragments {
		data = append(data, f...)
	}

	if mimeType == "" {
		mimeType = DefaultAudioMIMEType
	}
	return AudioObject{data: data, mimeType: mimeType}
}

func (a AudioObject) Len() int         { return len(a.data) }
func (a AudioObject) MIMEType() string { return a.mimeType }

// Bytes returns a copy of the payload.
func (a AudioObject) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

func (a AudioObject) Reader() io.Reader {
	return bytes.NewReader(a.data)
}
