package transport

import (
	"net"
	"testing"
	"time"
)

func TestCompressedTransportRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	server := NewCompressedTransport(serverConn)
	client := NewCompressedTransport(clientConn)

	payload := []byte("hello over a snappy-compressed pipe")
	done := make(chan error, 1)
	go func() {
		_, err := server.Write(payload)
		done <- err
	}()

	buf := make([]byte, len(payload))
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := readFull(client, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(payload) || string(buf) != string(payload) {
		t.Fatalf("got %q, want %q", buf[:n], payload)
	}
	if err := <-done; err != nil {
		t.Fatalf("write: %v", err)
	}

	out, _ := server.BytesTransferred()
	if out != uint64(len(payload)) {
		t.Fatalf("server BytesTransferred out = %d, want %d", out, len(payload))
	}
	_, in := client.BytesTransferred()
	if in != uint64(len(payload)) {
		t.Fatalf("client BytesTransferred in = %d, want %d", in, len(payload))
	}

	if n, err := server.Write(nil); n != 0 || err != nil {
		t.Fatalf("Write(nil) = (%d, %v), want (0, nil)", n, err)
	}
	if out, _ := server.BytesTransferred(); out != uint64(len(payload)) {
		t.Fatalf("BytesTransferred out after empty write = %d, want unchanged %d", out, len(payload))
	}
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
