package spdysession

import (
	"errors"
	"testing"
)

func TestCertificateCoversDomain(t *testing.T) {
	names := []string{"example.com", "*.example.org"}

	cases := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"EXAMPLE.COM", true},
		{"sub.example.org", true},
		{"example.org", false},
		{"other.com", false},
	}
	for _, c := range cases {
		if got := certificateCoversDomain(names, c.domain); got != c.want {
			t.Errorf("certificateCoversDomain(%q) = %v, want %v", c.domain, got, c.want)
		}
	}
}

func TestVerifyDomainAuthentication(t *testing.T) {
	base := CertificateInfo{
		Verified: true,
		DNSNames: []string{"example.com"},
	}

	if verifyDomainAuthentication(CertificateInfo{Verified: false}, "example.com", "example.com") {
		t.Fatal("an unverified chain must never authenticate a domain")
	}

	withErr := base
	withErr.CertError = errors.New("expired")
	if verifyDomainAuthentication(withErr, "example.com", "example.com") {
		t.Fatal("a cached certificate error must block authentication")
	}

	if verifyDomainAuthentication(base, "not-covered.com", "example.com") {
		t.Fatal("a domain the certificate doesn't cover must not authenticate")
	}

	matchingBinding := base
	matchingBinding.ChannelBindingDomain = "example.com"
	if !verifyDomainAuthentication(matchingBinding, "example.com", "example.com") {
		t.Fatal("a matching channel-binding domain should authenticate")
	}

	mismatchedBinding := base
	mismatchedBinding.ChannelBindingDomain = "other.com"
	if verifyDomainAuthentication(mismatchedBinding, "example.com", "example.com") {
		t.Fatal("a channel-binding domain for a different host must not authenticate on its own")
	}

	credentialFrames := base
	credentialFrames.CredentialFramesEnabled = true
	if !verifyDomainAuthentication(credentialFrames, "example.com", "example.com") {
		t.Fatal("CREDENTIAL frame support should authenticate without a channel-binding match")
	}
}
