// Package events implements spdysession.EventSink: pure observers of
// session activity. LogSink does plain log.Println connection-lifecycle
// logging; SNMPSink accumulates counters and periodically flushes them to
// CSV, the same role kcp-go's DefaultSnmp counters play for the transport
// layer below.
package events

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gospdy/spdytun/internal/spdysession"
)

// LogSink formats every event through the standard log package with a
// fixed label per event kind.
type LogSink struct{}

func (LogSink) OnSessionOpen(s *spdysession.Session) {
	log.Printf("spdysession: open remote=%s", s.RemoteAddr())
}

func (LogSink) OnFrameSent(s *spdysession.Session, frame spdysession.FrameType, streamID spdysession.StreamID, size int) {
	log.Printf("spdysession: sent %s stream=%d bytes=%d", frame, streamID, size)
}

func (LogSink) OnFrameRecv(s *spdysession.Session, frame spdysession.FrameType, streamID spdysession.StreamID, size int) {
	log.Printf("spdysession: recv %s stream=%d bytes=%d", frame, streamID, size)
}

func (LogSink) OnError(s *spdysession.Session, err error) {
	log.Printf("spdysession: error remote=%s err=%+v", s.RemoteAddr(), err)
}

func (LogSink) OnSettingsReceived(s *spdysession.Session, settings []spdysession.Setting) {
	log.Printf("spdysession: settings remote=%s count=%d", s.RemoteAddr(), len(settings))
}

func (LogSink) OnWindowUpdate(s *spdysession.Session, streamID spdysession.StreamID, delta uint32) {
	log.Printf("spdysession: window_update stream=%d delta=%d", streamID, delta)
}

func (LogSink) OnGoAway(s *spdysession.Session, lastGoodStreamID spdysession.StreamID, status spdysession.GoAwayStatus) {
	log.Printf("spdysession: goaway last_good=%d status=%d", lastGoodStreamID, status)
}

// counters is the SNMP-style accumulator SNMPSink flushes periodically,
// mirroring the field shape of kcp-go's Snmp struct (exported fields,
// monotonic counters, no reset between samples).
type counters struct {
	FramesSent     uint64
	FramesRecv     uint64
	BytesSent      uint64
	BytesRecv      uint64
	RSTSent        uint64
	RSTRecv        uint64
	SettingsRecv   uint64
	WindowUpdates  uint64
	GoAways        uint64
	Errors         uint64
}

// SNMPSink accumulates counters and serializes them to a CSV file on a
// fixed period, the same periodic-flush-to-file idiom kcp-go's DefaultSnmp
// uses at the transport layer.
type SNMPSink struct {
	c      counters
	path   string
	period time.Duration

	once sync.Once
	stop chan struct{}
}

// NewSNMPSink creates a sink that writes a CSV row to path every period.
func NewSNMPSink(path string, period time.Duration) *SNMPSink {
	return &SNMPSink{path: path, period: period, stop: make(chan struct{})}
}

// Start launches the periodic flush goroutine; safe to call once.
func (s *SNMPSink) Start() {
	s.once.Do(func() {
		go s.run()
	})
}

// Stop halts the periodic flush goroutine.
func (s *SNMPSink) Stop() { close(s.stop) }

func (s *SNMPSink) run() {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.flush(); err != nil {
				log.Printf("spdysession: snmp flush error: %v", err)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *SNMPSink) flush() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		fmt.Sprint(atomic.LoadUint64(&s.c.FramesSent)),
		fmt.Sprint(atomic.LoadUint64(&s.c.FramesRecv)),
		fmt.Sprint(atomic.LoadUint64(&s.c.BytesSent)),
		fmt.Sprint(atomic.LoadUint64(&s.c.BytesRecv)),
		fmt.Sprint(atomic.LoadUint64(&s.c.RSTSent)),
		fmt.Sprint(atomic.LoadUint64(&s.c.RSTRecv)),
		fmt.Sprint(atomic.LoadUint64(&s.c.SettingsRecv)),
		fmt.Sprint(atomic.LoadUint64(&s.c.WindowUpdates)),
		fmt.Sprint(atomic.LoadUint64(&s.c.GoAways)),
		fmt.Sprint(atomic.LoadUint64(&s.c.Errors)),
	}
	return w.Write(row)
}

func (s *SNMPSink) OnSessionOpen(*spdysession.Session) {}

func (s *SNMPSink) OnFrameSent(_ *spdysession.Session, frame spdysession.FrameType, _ spdysession.StreamID, size int) {
	atomic.AddUint64(&s.c.FramesSent, 1)
	atomic.AddUint64(&s.c.BytesSent, uint64(size))
	if frame == spdysession.FrameRstStream {
		atomic.AddUint64(&s.c.RSTSent, 1)
	}
}

func (s *SNMPSink) OnFrameRecv(_ *spdysession.Session, frame spdysession.FrameType, _ spdysession.StreamID, size int) {
	atomic.AddUint64(&s.c.FramesRecv, 1)
	atomic.AddUint64(&s.c.BytesRecv, uint64(size))
	if frame == spdysession.FrameRstStream {
		atomic.AddUint64(&s.c.RSTRecv, 1)
	}
}

func (s *SNMPSink) OnError(*spdysession.Session, error) {
	atomic.AddUint64(&s.c.Errors, 1)
}

func (s *SNMPSink) OnSettingsReceived(*spdysession.Session, []spdysession.Setting) {
	atomic.AddUint64(&s.c.SettingsRecv, 1)
}

func (s *SNMPSink) OnWindowUpdate(*spdysession.Session, spdysession.StreamID, uint32) {
	atomic.AddUint64(&s.c.WindowUpdates, 1)
}

func (s *SNMPSink) OnGoAway(*spdysession.Session, spdysession.StreamID, spdysession.GoAwayStatus) {
	atomic.AddUint64(&s.c.GoAways, 1)
}
