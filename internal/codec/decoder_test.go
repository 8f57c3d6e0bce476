package codec

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPPMHeaderParsesMagicWidthHeight(t *testing.T) {
	data := []byte("P6\n320 240\n255\n")
	data = append(data, bytes.Repeat([]byte{1}, 320*240*3)...)

	r := bufio.NewReader(bytes.NewReader(data))
	width, height, err := readPPMHeader(r)
	require.NoError(t, err)
	assert.Equal(t, 320, width)
	assert.Equal(t, 240, height)

	frame := make([]byte, width*height*3)
	_, err = io.ReadFull(r, frame)
	require.NoError(t, err)
	for _, b := range frame {
		assert.Equal(t, byte(1), b)
	}
}

func TestReadPPMHeaderSkipsComments(t *testing.T) {
	data := []byte("P6\n# generated by ffmpeg\n16 8\n# comment between tokens\n255\n")
	r := bufio.NewReader(bytes.NewReader(data))
	width, height, err := readPPMHeader(r)
	require.NoError(t, err)
	assert.Equal(t, 16, width)
	assert.Equal(t, 8, height)
}

func TestReadPPMHeaderRejectsWrongMagic(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("P5\n16 8\n255\n")))
	_, _, err := readPPMHeader(r)
	assert.Error(t, err)
}

func TestReadPPMHeaderConsecutiveFrames(t *testing.T) {
	var buf bytes.Buffer
	frame1 := bytes.Repeat([]byte{0xAA}, 2*2*3)
	frame2 := bytes.Repeat([]byte{0xBB}, 2*2*3)
	buf.WriteString("P6\n2 2\n255\n")
	buf.Write(frame1)
	buf.WriteString("P6\n2 2\n255\n")
	buf.Write(frame2)

	r := bufio.NewReader(&buf)

	w, h, err := readPPMHeader(r)
	require.NoError(t, err)
	got1 := make([]byte, w*h*3)
	_, err = io.ReadFull(r, got1)
	require.NoError(t, err)
	assert.Equal(t, frame1, got1)

	w, h, err = readPPMHeader(r)
	require.NoError(t, err)
	got2 := make([]byte, w*h*3)
	_, err = io.ReadFull(r, got2)
	require.NoError(t, err)
	assert.Equal(t, frame2, got2)
}

func TestAtoiStrict(t *testing.T) {
	n, err := atoiStrict("1920")
	require.NoError(t, err)
	assert.Equal(t, 1920, n)

	_, err = atoiStrict("")
	assert.Error(t, err)

	_, err = atoiStrict("12a")
	assert.Error(t, err)
}
