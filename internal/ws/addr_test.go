package ws

import (
	"net/http"
	"testing"
)

func TestResolveClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.4:51234",
			want:       "203.0.113.4",
		},
		{
			name:       "header ignored without proxy trust",
			remoteAddr: "203.0.113.4:51234",
			forwarded:  "198.51.100.7",
			want:       "203.0.113.4",
		},
		{
			name:       "header honored behind proxy",
			remoteAddr: "10.0.0.2:443",
			forwarded:  "198.51.100.7",
			trustProxy: true,
			want:       "198.51.100.7",
		},
		{
			name:       "first hop wins in a chain",
			remoteAddr: "10.0.0.2:443",
			forwarded:  "198.51.100.7, 10.0.0.3, 10.0.0.2",
			trustProxy: true,
			want:       "198.51.100.7",
		},
		{
			name:       "whitespace trimmed",
			remoteAddr: "10.0.0.2:443",
			forwarded:  "  198.51.100.7 , 10.0.0.3",
			trustProxy: true,
			want:       "198.51.100.7",
		},
		{
			name:       "empty header falls back to peer",
			remoteAddr: "203.0.113.4:51234",
			forwarded:  "",
			trustProxy: true,
			want:       "203.0.113.4",
		},
		{
			name:       "peer without port returned as-is",
			remoteAddr: "203.0.113.4",
			want:       "203.0.113.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			got := ResolveClientAddr(r, tt.trustProxy)
			if got != tt.want {
				t.Errorf("ResolveClientAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
