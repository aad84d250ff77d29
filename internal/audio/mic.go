// Package audio captures microphone input as PCM16-LE frames for the
// transcription channel. Capture UI and playback live elsewhere; this is
// strictly the input source.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/gordonklaus/portaudio"
)

// FrameSink receives raw PCM16-LE audio frames. The transcription channel
// implements it.
type FrameSink interface {
	SendAudio(frame []byte) error
}

// Mic wraps PortAudio with a configurable buffer size.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMic opens a PortAudio capture stream with the given sample rate and
// buffer size (in frames). Call portaudio.Initialize first.
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Start() error { return m.stream.Start() }
func (m *Mic) Stop() error  { return m.stream.Stop() }
func (m *Mic) Close() error { return m.stream.Close() }

// StreamTo reads from the mic and forwards PCM16-LE frames to sink until ctx
// is done or an error occurs. Callers must only start streaming once the
// sink's transport reports itself ready.
func (m *Mic) StreamTo(ctx context.Context, sink FrameSink) error {
	var out bytes.Buffer
	out.Grow(len(m.buf) * 2) // int16 = 2 bytes per sample
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.stream.Read(); err != nil {
			return err
		}
		out.Reset()
		if err := binary.Write(&out, binary.LittleEndian, m.buf); err != nil {
			return err
		}
		if err := sink.SendAudio(out.Bytes()); err != nil {
			return err
		}
	}
}
