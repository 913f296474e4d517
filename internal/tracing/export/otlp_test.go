package export

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportCredentials(t *testing.T) {
	tests := []struct {
		name     string
		cfg      OTLPConfig
		protocol string
	}{
		{name: "insecure", cfg: OTLPConfig{Insecure: true}, protocol: "insecure"},
		{name: "custom tls", cfg: OTLPConfig{TLSConfig: &tls.Config{MinVersion: tls.VersionTLS13}}, protocol: "tls"},
		{name: "default tls", cfg: OTLPConfig{}, protocol: "tls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := transportCredentials(tt.cfg)
			assert.Equal(t, tt.protocol, creds.Info().SecurityProtocol)
		})
	}
}
