package events

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/gospdy/spdytun/internal/spdysession"
)

func TestSNMPSinkAccumulatesCounters(t *testing.T) {
	sink := NewSNMPSink(filepath.Join(t.TempDir(), "snmp.csv"), 0)

	sink.OnFrameSent(nil, spdysession.FrameData, 1, 100)
	sink.OnFrameSent(nil, spdysession.FrameData, 1, 50)
	sink.OnFrameRecv(nil, spdysession.FrameRstStream, 1, 8)
	sink.OnError(nil, nil)
	sink.OnSettingsReceived(nil, nil)
	sink.OnWindowUpdate(nil, 1, 1024)
	sink.OnGoAway(nil, 0, 0)

	if sink.c.FramesSent != 2 {
		t.Fatalf("FramesSent = %d, want 2", sink.c.FramesSent)
	}
	if sink.c.BytesSent != 150 {
		t.Fatalf("BytesSent = %d, want 150", sink.c.BytesSent)
	}
	if sink.c.RSTRecv != 1 {
		t.Fatalf("RSTRecv = %d, want 1 (FrameRstStream recv should count as an RST)", sink.c.RSTRecv)
	}
	if sink.c.Errors != 1 || sink.c.SettingsRecv != 1 || sink.c.WindowUpdates != 1 || sink.c.GoAways != 1 {
		t.Fatalf("unexpected counters: %+v", sink.c)
	}
}

func TestSNMPSinkFlushWritesCSVRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snmp.csv")
	sink := NewSNMPSink(path, 0)
	sink.OnFrameSent(nil, spdysession.FrameData, 1, 42)

	if err := sink.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0][1] != "1" {
		t.Fatalf("FramesSent column = %q, want 1", rows[0][1])
	}
}
