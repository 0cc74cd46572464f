// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"crypto/x509"
	"errors"
	"net/netip"
	"testing"

	sf "github.com/bassosimone/streamfactory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTLSErrorWrapsCertificateFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		wrap bool
	}{
		{name: "hostname error", err: x509.HostnameError{}, wrap: true},
		{name: "unknown authority", err: x509.UnknownAuthorityError{}, wrap: true},
		{name: "invalid certificate", err: x509.CertificateInvalidError{}, wrap: true},
		{name: "unrelated error", err: errors.New("connection reset"), wrap: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyTLSError(tt.err)
			var certErr *sf.CertificateError
			ok := errors.As(got, &certErr)
			assert.Equal(t, tt.wrap, ok)
			if tt.wrap {
				assert.Equal(t, tt.err, certErr.Err)
			} else {
				assert.Equal(t, tt.err, got)
			}
		})
	}
}

func TestHTTP1H2PoolResolveAcceptsNumericAddress(t *testing.T) {
	cfg := NewConfig()
	p := NewHTTP1H2Pool(cfg, sf.DefaultSLogger())

	addr, err := p.resolve(context.Background(), sf.Endpoint{Host: "127.0.0.1", Port: 443})
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), addr.Addr())
	assert.EqualValues(t, 443, addr.Port())
}

func TestHTTP1H2PoolAcquireHTTP2SessionMiss(t *testing.T) {
	cfg := NewConfig()
	p := NewHTTP1H2Pool(cfg, sf.DefaultSLogger())

	sess, ok := p.AcquireHTTP2Session(sf.SessionKey{Origin: sf.Origin{Host: "example.test", Port: 443}})
	assert.False(t, ok)
	assert.Nil(t, sess)
}
