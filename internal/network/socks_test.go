package network

import "testing"

func TestNewSOCKS5Dialer(t *testing.T) {
	d, err := NewSOCKS5Dialer("localhost", 1080)
	if err != nil {
		t.Fatalf("NewSOCKS5Dialer failed: %v", err)
	}
	if d == nil {
		t.Fatal("expected dialer")
	}
	if got := d.Addr(); got != "localhost:1080" {
		t.Errorf("Addr: got %q, want localhost:1080", got)
	}
}

func TestNewSOCKS5Dialer_NoProxy(t *testing.T) {
	d, err := NewSOCKS5Dialer("", 1080)
	if err != nil {
		t.Fatalf("NewSOCKS5Dialer failed: %v", err)
	}
	if d != nil {
		t.Error("empty host must mean no proxy")
	}
}
