package transport

import (
	"crypto/tls"

	"github.com/gospdy/spdytun/internal/spdysession"
)

// TLSTransport adapts a *tls.Conn to spdysession.Transport and additionally
// implements spdysession.CredentialSource, exposing the peer certificate's
// names and verification state; the session itself does not consult it.
// Kept for interface completeness and for tests that want a non-KCP
// transport without standing up UDP.
type TLSTransport struct {
	*tls.Conn
}

// NewTLSTransport wraps an already-handshaken *tls.Conn.
func NewTLSTransport(conn *tls.Conn) *TLSTransport {
	return &TLSTransport{Conn: conn}
}

// CertificateInfo reports the peer certificate's names and whether its
// chain verified, satisfying spdysession.CredentialSource;
// ChannelBindingDomain is always left empty.
func (t *TLSTransport) CertificateInfo() (spdysession.CertificateInfo, error) {
	state := t.Conn.ConnectionState()

	info := spdysession.CertificateInfo{
		CredentialFramesEnabled: state.NegotiatedProtocol != "",
	}
	if len(state.PeerCertificates) == 0 {
		return info, nil
	}

	leaf := state.PeerCertificates[0]
	info.DNSNames = leaf.DNSNames
	info.Verified = len(state.VerifiedChains) > 0
	if !info.Verified {
		info.CertError = errNoVerifiedChain
	}
	return info, nil
}

// NegotiatedProtocol reports the ALPN protocol the handshake settled on.
func (t *TLSTransport) NegotiatedProtocol() string {
	return t.Conn.ConnectionState().NegotiatedProtocol
}

var errNoVerifiedChain = tlsError("transport: no verified certificate chain")

type tlsError string

func (e tlsError) Error() string { return string(e) }
