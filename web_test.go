/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"peer", "192.0.2.1:5000", nil, "192.0.2.1:5000"},
		{"cloudflare", "192.0.2.1:5000", map[string]string{"CF-Connecting-IP": "198.51.100.7"}, "198.51.100.7:5000"},
		{"real ip", "192.0.2.1:5000", map[string]string{"X-Real-IP": "198.51.100.8"}, "198.51.100.8:5000"},
		{"forwarded", "192.0.2.1:5000", map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.1"}, "198.51.100.9:5000"},
		{"garbage header", "192.0.2.1:5000", map[string]string{"X-Real-IP": "nope"}, "192.0.2.1:5000"},
		{"ipv6", "[2001:db8::1]:5000", nil, "[2001:db8::1]:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, realIP(r))
		})
	}
}

func TestRobotsTxt(t *testing.T) {
	data := robotsTxt("/games")

	assert.Contains(t, data, "User-agent: GPTBot\nDisallow: /\n")
	assert.Contains(t, data, "User-agent: *\nDisallow: /games/spyfall/\n")
}
