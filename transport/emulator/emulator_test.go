package emulator

import (
	"testing"
	"time"

	"github.com/opencontrols/psgateway/addrconn"
)

func readLine(t *testing.T, e *Emulator) string {
	t.Helper()
	e.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	n, err := e.Read(buf)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if n == 0 {
		t.Fatal("Read timed out waiting for a response")
	}
	return string(buf[:n])
}

func TestAddressingThenQuery(t *testing.T) {
	e := New([]addrconn.Address{1}, nil)
	e.Write([]byte("ADR 1\r"))
	if got := readLine(t, e); got != "OK\r" {
		t.Fatalf("ADR reply = %q, want OK\\r", got)
	}

	e.Write([]byte("SN?\r"))
	if got := readLine(t, e); got != "EMU-1\r" {
		t.Fatalf("SN? reply = %q, want EMU-1\\r", got)
	}
}

func TestScalarSetMirrorsIntoMeasured(t *testing.T) {
	e := New([]addrconn.Address{1}, nil)
	e.Write([]byte("ADR 1\r"))
	readLine(t, e)

	e.Write([]byte("PV 5\r"))
	if got := readLine(t, e); got != "OK\r" {
		t.Fatalf("PV set reply = %q, want OK\\r", got)
	}

	e.Write([]byte("MV?\r"))
	if got := readLine(t, e); got != "5\r" {
		t.Fatalf("MV? reply = %q, want 5\\r", got)
	}
}

func TestAddressingUnknownDeviceReportsADDR(t *testing.T) {
	e := New([]addrconn.Address{1}, nil)
	e.Write([]byte("ADR 9\r"))
	if got := readLine(t, e); got != "ADDR\r" {
		t.Fatalf("reply = %q, want ADDR\\r", got)
	}
}

func TestOfflineDeviceDoesNotRespond(t *testing.T) {
	e := New([]addrconn.Address{1}, nil)
	e.SetOffline(1, true)
	e.Write([]byte("ADR 1\r"))
	readLine(t, e) // ADR still answers even while "offline"

	e.Write([]byte("PV?\r"))
	e.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 64)
	n, err := e.Read(buf)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no response from an offline device, got %q", buf[:n])
	}
}

func TestRaiseSRQInjectsBytePairImmediately(t *testing.T) {
	e := New([]addrconn.Address{3}, nil)
	e.RaiseSRQ(3)

	e.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4)
	n, err := e.Read(buf)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	want := byte(0x80 | 3)
	if n != 2 || buf[0] != want || buf[1] != want {
		t.Fatalf("Read = %v, want [%v %v]", buf[:n], want, want)
	}
}

func TestFlushDiscardsPendingOutput(t *testing.T) {
	e := New([]addrconn.Address{1}, nil)
	e.Write([]byte("ADR 1\r"))
	time.Sleep(ResponseDelay * 2)
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	e.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 64)
	n, _ := e.Read(buf)
	if n != 0 {
		t.Fatalf("expected Flush to discard the buffered ADR reply, got %q", buf[:n])
	}
}
