// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "yukkuri/internal/log"
	"yukkuri/internal/transport"
)

// MaxMessageBytes caps the text carried by one packet.
const MaxMessageBytes = 1024

const headerSize = 4 + 8 + 1 + 4 + 2

// ErrShortPacket reports a datagram too small for its declared contents.
var ErrShortPacket = errors.New("short packet")

/*
Packet layout (BigEndian):

| Field     | Type    | Size | Description                  |
|-----------|---------|------|------------------------------|
| Sequence  | uint32  | 4    | Hub sequence number          |
| Timestamp | int64   | 8    | Nanoseconds since epoch      |
| Kind      | uint8   | 1    | 1 log, 2 progress, 3 result  |
| Percent   | float32 | 4    | Progress, 0 for other kinds  |
| Length    | uint16  | 2    | Message length N             |
| Message   | []byte  | N    | UTF-8 text, at most 1024     |
*/

// Packet is a decoded datagram.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Kind      transport.Kind
	Percent   float32
	Message   string
}

// UDPPublisher sends every event as one datagram and repeats the latest
// progress event on a fixed interval so listeners that join mid-job catch up.
type UDPPublisher struct {
	sender   *UDPSender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker, doneChan and the packet buffer

	last         *transport.Event
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher wraps sender. An interval <= 0 disables the heartbeat.
func NewUDPPublisher(interval time.Duration, sender *UDPSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the heartbeat goroutine. Calling it twice is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil || p.interval <= 0 {
		p.mu.Unlock()
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, doneChan := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Heartbeat started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.mu.Lock()
				last := p.last
				p.mu.Unlock()
				if last != nil {
					p.send(*last)
				}
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the heartbeat and waits for it to exit.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// Send packs and sends ev immediately.
func (p *UDPPublisher) Send(ev transport.Event) error {
	if ev.Kind == transport.KindProgress {
		p.mu.Lock()
		p.last = &ev
		p.mu.Unlock()
	}
	return p.send(ev)
}

func (p *UDPPublisher) send(ev transport.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packetBuffer.Reset()
	if err := EncodePacket(p.packetBuffer, ev); err != nil {
		applog.Errorf("UDPPublisher: Error packing event %d: %v", ev.Seq, err)
		return err
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		return err
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", ev.Seq, p.packetBuffer.Len())
	return nil
}

// Close stops the heartbeat and closes the sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

var _ transport.Transport = (*UDPPublisher)(nil)

// message returns the text carried for ev: result events carry the path
// and any error.
func message(ev transport.Event) string {
	msg := ev.Message
	if ev.Kind == transport.KindResult {
		msg = ev.Path
		if ev.Error != "" {
			msg += ": " + ev.Error
		}
	}
	if len(msg) > MaxMessageBytes {
		msg = msg[:MaxMessageBytes]
	}
	return msg
}

// EncodePacket writes ev to w in the datagram layout.
func EncodePacket(w *bytes.Buffer, ev transport.Event) error {
	msg := message(ev)
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fields := []any{
		ev.Seq,
		ts.UnixNano(),
		uint8(ev.Kind),
		float32(ev.Percent),
		uint16(len(msg)),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return err
		}
	}
	_, err := w.WriteString(msg)
	return err
}

// DecodePacket parses one datagram.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Kind:      transport.Kind(b[12]),
		Percent:   math.Float32frombits(binary.BigEndian.Uint32(b[13:17])),
	}
	n := int(binary.BigEndian.Uint16(b[17:19]))
	if len(b) < headerSize+n {
		return Packet{}, fmt.Errorf("%w: message needs %d bytes, have %d", ErrShortPacket, n, len(b)-headerSize)
	}
	p.Message = string(b[headerSize : headerSize+n])
	return p, nil
}
