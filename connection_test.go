// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import (
	"encoding/binary"
	"hash/adler32"
	"net"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/gameconn/internal/dispatcher"
)

// testProtocol records the lifecycle calls a Connection makes into it, with
// channels so tests can synchronize against the Connection's own goroutines
// instead of sleeping.
type testProtocol struct {
	mu   sync.Mutex
	conn *Connection

	connectedOnce sync.Once
	connected     chan struct{}
	first         chan []byte
	recv          chan []byte
	releasedOnce  sync.Once
	released      chan struct{}
}

func newTestProtocol() *testProtocol {
	return &testProtocol{
		connected: make(chan struct{}),
		first:     make(chan []byte, 8),
		recv:      make(chan []byte, 8),
		released:  make(chan struct{}),
	}
}

func (p *testProtocol) OnConnect() { p.connectedOnce.Do(func() { close(p.connected) }) }

func (p *testProtocol) OnRecvFirstMessage(msg *NetworkMessage) {
	p.first <- append([]byte(nil), msg.Remaining()...)
}

func (p *testProtocol) OnRecvMessage(msg *NetworkMessage) {
	p.recv <- append([]byte(nil), msg.Remaining()...)
}

func (p *testProtocol) OnSendMessage(*OutputMessage) {}

func (p *testProtocol) ReleaseProtocol() { p.releasedOnce.Do(func() { close(p.released) }) }

func (p *testProtocol) SetConnection(c *Connection) {
	p.mu.Lock()
	p.conn = c
	p.mu.Unlock()
}

func encodeFrame(payload []byte) []byte {
	buf := make([]byte, HeaderLength+len(payload))
	binary.LittleEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[HeaderLength:], payload)
	return buf
}

func encodeChecksummedFrame(payload []byte) []byte {
	body := make([]byte, checksumLength+len(payload))
	binary.LittleEndian.PutUint32(body, adler32.Checksum(payload))
	copy(body[checksumLength:], payload)
	return encodeFrame(body)
}

func newTestConnection(t *testing.T, proto Protocol) (*Connection, net.Conn, *dispatcher.Dispatcher) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	d := dispatcher.New(16)
	t.Cleanup(d.Stop)

	manager := NewConnectionManager(DefaultConfig(), d, nil)
	port := ServicePortFunc(func(checksumPresent bool, msg *NetworkMessage) Protocol { return proto })

	conn, err := manager.CreateConnection(server, port)
	if err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
	if err := conn.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return conn, client, d
}

func TestConnectionFirstAndSubsequentMessages(t *testing.T) {
	proto := newTestProtocol()
	_, client, _ := newTestConnection(t, proto)

	if _, err := client.Write(encodeFrame([]byte("hello"))); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case got := <-proto.first:
		if string(got) != "hello" {
			t.Fatalf("OnRecvFirstMessage payload = %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnRecvFirstMessage")
	}

	if _, err := client.Write(encodeFrame([]byte("world"))); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case got := <-proto.recv:
		if string(got) != "world" {
			t.Fatalf("OnRecvMessage payload = %q, want %q", got, "world")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnRecvMessage")
	}
}

func TestConnectionChecksumIsStrippedBeforeDispatch(t *testing.T) {
	proto := newTestProtocol()
	_, client, _ := newTestConnection(t, proto)

	if _, err := client.Write(encodeChecksummedFrame([]byte("checked"))); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case got := <-proto.first:
		if string(got) != "checked" {
			t.Fatalf("OnRecvFirstMessage payload = %q, want %q (checksum should be stripped)", got, "checked")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnRecvFirstMessage")
	}
}

func TestConnectionRejectedProtocolReleasesWithoutOnConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := dispatcher.New(16)
	defer d.Stop()

	manager := NewConnectionManager(DefaultConfig(), d, nil)
	port := ServicePortFunc(func(checksumPresent bool, msg *NetworkMessage) Protocol { return nil })

	conn, err := manager.CreateConnection(server, port)
	if err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
	if err := conn.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := client.Write(encodeFrame([]byte("hi"))); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-conn.Released():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for release after protocol rejection")
	}
}

func TestConnectionOversizedFrameCloses(t *testing.T) {
	proto := newTestProtocol()
	conn, client, _ := newTestConnection(t, proto)

	header := make([]byte, HeaderLength)
	binary.LittleEndian.PutUint16(header, uint16(maxBodyLength)) // == maxBodyLength, invalid (strict <)
	if _, err := client.Write(header); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-conn.Released():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for release after an oversized header")
	}
}

func TestConnectionRemoteEOFReleasesConnection(t *testing.T) {
	proto := newTestProtocol()
	conn, client, _ := newTestConnection(t, proto)

	if _, err := client.Write(encodeFrame([]byte("hi"))); err != nil {
		t.Fatalf("client write: %v", err)
	}
	<-proto.first

	client.Close()

	select {
	case <-conn.Released():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for release after remote EOF")
	}

	select {
	case <-proto.released:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ReleaseProtocol")
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	proto := newTestProtocol()
	conn, _, _ := newTestConnection(t, proto)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Close()
		}()
	}
	wg.Wait()

	select {
	case <-conn.Released():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for release after concurrent Close calls")
	}
}

func TestConnectionSendAfterCloseReturnsFalse(t *testing.T) {
	proto := newTestProtocol()
	conn, _, _ := newTestConnection(t, proto)

	conn.Close()
	<-conn.Released()

	if conn.Send(NewOutputMessage(nil, []byte("too late"))) {
		t.Fatal("Send() after Close() = true, want false")
	}
}

func TestConnectionSendRoundTrip(t *testing.T) {
	proto := newTestProtocol()
	conn, client, _ := newTestConnection(t, proto)

	if !conn.Send(NewOutputMessage(nil, []byte("reply"))) {
		t.Fatal("Send() = false, want true")
	}

	header := make([]byte, HeaderLength)
	if _, err := readFull(client, header); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	n := binary.LittleEndian.Uint16(header)
	body := make([]byte, n)
	if _, err := readFull(client, body); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != "reply" {
		t.Fatalf("body = %q, want %q", body, "reply")
	}
}

func readFull(r net.Conn, buf []byte) (int, error) {
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
