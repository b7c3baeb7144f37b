// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"yukkuri/internal/log"
	"yukkuri/internal/media"
)

// ErrNoOutput reports a device without output channels.
var ErrNoOutput = errors.New("device has no output channels")

// Player streams decoded clips to an output device.
type Player struct {
	DeviceID        int
	FramesPerBuffer int
	LowLatency      bool
}

// cursor feeds a buffer to the stream callback. It runs on the PortAudio
// thread, so it only touches its own fields and never allocates.
type cursor struct {
	channels [][]float64
	frames   int
	outCh    int
	pos      atomic.Int64
	done     chan struct{}
	once     sync.Once
}

func newCursor(buf *media.Buffer, outCh int) *cursor {
	return &cursor{
		channels: buf.Channels,
		frames:   buf.Frames(),
		outCh:    outCh,
		done:     make(chan struct{}),
	}
}

// fill writes the next interleaved frames to out. Output channels beyond the
// source reuse the last source channel, so mono plays on both speakers.
// Past the end it writes silence and signals done.
func (c *cursor) fill(out []float32) {
	pos := int(c.pos.Load())
	frames := len(out) / c.outCh
	last := len(c.channels) - 1
	for f := range frames {
		for ch := range c.outCh {
			var v float32
			if pos+f < c.frames {
				v = float32(c.channels[min(ch, last)][pos+f])
			}
			out[f*c.outCh+ch] = v
		}
	}
	pos += frames
	c.pos.Store(int64(pos))
	if pos >= c.frames {
		c.once.Do(func() { close(c.done) })
	}
}

// played returns how far playback has progressed.
func (c *cursor) played(sampleRate int) time.Duration {
	p := min(int(c.pos.Load()), c.frames)
	return time.Duration(p) * time.Second / time.Duration(sampleRate)
}

// Play streams buf and blocks until it has been played or ctx is done.
func (p *Player) Play(ctx context.Context, buf *media.Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if err := Initialize(); err != nil {
		return err
	}
	defer Terminate()

	dev, err := OutputDevice(p.DeviceID)
	if err != nil {
		return err
	}
	if dev.MaxOutputChannels == 0 {
		return fmt.Errorf("%w: %s", ErrNoOutput, dev.Name)
	}
	outCh := min(max(buf.NumChannels(), 2), dev.MaxOutputChannels)

	latency := dev.DefaultHighOutputLatency
	if p.LowLatency {
		latency = dev.DefaultLowOutputLatency
	}
	frames := p.FramesPerBuffer
	if frames <= 0 {
		frames = portaudio.FramesPerBufferUnspecified
	}

	cur := newCursor(buf, outCh)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: outCh,
			Latency:  latency,
		},
		SampleRate:      float64(buf.SampleRate),
		FramesPerBuffer: frames,
	}
	stream, err := portaudio.OpenStream(params, cur.fill)
	if err != nil {
		return fmt.Errorf("opening output stream on %s: %w", dev.Name, err)
	}
	defer stream.Close()

	log.Debugf("Playback: %s, %d channel(s), %d Hz, latency %s", dev.Name, outCh, buf.SampleRate, latency)
	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}

	select {
	case <-cur.done:
		// Let the device drain what is already queued.
		time.Sleep(latency)
	case <-ctx.Done():
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("stopping output stream: %w", err)
	}
	log.Debugf("Playback: played %s of %s", cur.played(buf.SampleRate), buf.Duration())
	return ctx.Err()
}
