package asr

import (
	"bytes"
	"encoding/binary"

	"github.com/rbright/murmur/internal/audio"
)

// EncodeWAV wraps raw PCM in a RIFF/WAVE container so the transcription
// endpoint can sniff the sample format from the header.
func EncodeWAV(buf *audio.Buffer) []byte {
	pcm := buf.PCM
	format := buf.Format

	byteRate := format.SampleRate * format.Channels * format.BytesPerSample
	blockAlign := format.Channels * format.BytesPerSample

	var out bytes.Buffer
	out.Grow(44 + len(pcm))

	out.WriteString("RIFF")
	writeUint32(&out, uint32(36+len(pcm)))
	out.WriteString("WAVE")

	out.WriteString("fmt ")
	writeUint32(&out, 16)
	writeUint16(&out, 1) // PCM
	writeUint16(&out, uint16(format.Channels))
	writeUint32(&out, uint32(format.SampleRate))
	writeUint32(&out, uint32(byteRate))
	writeUint16(&out, uint16(blockAlign))
	writeUint16(&out, uint16(format.BytesPerSample*8))

	out.WriteString("data")
	writeUint32(&out, uint32(len(pcm)))
	out.Write(pcm)

	return out.Bytes()
}

func writeUint16(out *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	out.Write(b[:])
}

func writeUint32(out *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	out.Write(b[:])
}
