package utils

import (
	"bytes"
	"testing"
)

func TestTempFile_WriteRead(t *testing.T) {
	f, err := NewTempFile()
	if err != nil {
		t.Fatalf("NewTempFile() error: %v", err)
	}
	defer f.Remove()

	const content = "foo bar baz quux"
	if err := f.Write(content); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	for i := 0; i < 10; i++ {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		if got != content {
			t.Fatalf("Read() = %q, want %q", got, content)
		}
	}
}

func TestTempFile_Truncates(t *testing.T) {
	f, err := NewTempFile()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Remove()

	if err := f.Write("a much longer first payload"); err != nil {
		t.Fatal(err)
	}
	if err := f.Write("short"); err != nil {
		t.Fatal(err)
	}

	got, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}
	if got != "short" {
		t.Errorf("Read() = %q, want %q", got, "short")
	}
}

func TestTempFile_ReadMissing(t *testing.T) {
	f, err := NewTempFile()
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Remove(); err != nil {
		t.Fatal(err)
	}

	if _, err := f.Read(); err == nil {
		t.Error("Read() after Remove should fail")
	}
}

func TestPipe_PacketRoundTrip(t *testing.T) {
	p, err := NewPipe()
	if err != nil {
		t.Fatalf("NewPipe() error: %v", err)
	}
	defer p.Close()

	packets := [][]byte{
		[]byte("first"),
		[]byte("second packet"),
		[]byte{0x00, 0xff, 0x7f},
	}

	for _, pkt := range packets {
		if _, err := p.Write(pkt); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	// O_DIRECT keeps packet boundaries: each read returns one write.
	buf := make([]byte, 4096)
	for _, want := range packets {
		n, err := p.Read(buf)
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Errorf("Read() = %q, want %q", buf[:n], want)
		}
	}
}
