package models

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAudioObject(t *testing.T) {
	a := NewAudioObject([][]byte{[]byte("he"), nil, []byte("llo")}, "audio/ogg")
	assert.Equal(t, 5, a.Len())
	assert.Equal(t, "audio/ogg", a.MIMEType())

	b := a.Bytes()
	assert.Equal(t, []byte("hello"), b)
	b[0] = 'X'
	assert.Equal(t, []byte("hello"), a.Bytes())

	raw, err := io.ReadAll(a.Reader())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw)
}

func TestNewAudioObjectDefaults(t *testing.T) {
	a := NewAudioObject(nil, "")
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, DefaultAudioMIMEType, a.MIMEType())
	assert.Empty(t, a.Bytes())
}
