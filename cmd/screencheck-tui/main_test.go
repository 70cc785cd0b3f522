package main

import "testing"

func TestDeriveHTTPBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://127.0.0.1:8090/ws", "http://127.0.0.1:8090"},
		{"wss://share.example.test/ws", "https://share.example.test"},
		{"ws://box:9000/ws?token=x", "http://box:9000"},
		{"not a url", "http://127.0.0.1:8090"},
	}
	for _, tt := range tests {
		if got := deriveHTTPBase(tt.in); got != tt.want {
			t.Errorf("deriveHTTPBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
