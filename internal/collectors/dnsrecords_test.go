package collectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudauditor/internal/domain"
)

func TestDNSRecordCheckerFindsEverything(t *testing.T) {
	f := &fakeDoH{zone: map[string][]string{
		"www.example.com. TXT": {
			`www.example.com. 300 IN TXT "v=spf1 include:_spf.google.com ~all"`,
			`www.example.com. 300 IN TXT "google-site-verification=abc"`,
		},
		"_dmarc.example.com. TXT": {
			`_dmarc.example.com. 300 IN TXT "v=DMARC1 p=reject"`,
		},
		"selector1._domainkey.www.example.com. TXT": {
			`selector1._domainkey.www.example.com. 300 IN TXT "v=DKIM1 k=rsa p=MIGf"`,
		},
		"www.example.com. MX": {
			"www.example.com. 300 IN MX 10 mx1.example.com.",
		},
	}}
	c := NewDNSRecordChecker(newFakeDoH(t, f))

	ev, err := c.Collect(context.Background(), DNSTarget{Hostname: "www.example.com", Registrable: "example.com"})
	require.NoError(t, err)

	assert.True(t, ev.HasSPF)
	assert.True(t, ev.HasDMARC)
	assert.True(t, ev.HasDKIM)
	assert.Equal(t, []domain.DNSRecord{
		{Type: "TXT", Value: "v=spf1 include:_spf.google.com ~all"},
		{Type: "TXT", Value: "google-site-verification=abc"},
		{Type: "DMARC", Value: "v=DMARC1 p=reject"},
		{Type: "DKIM", Value: "selector1: v=DKIM1 k=rsa p=MIGf"},
		{Type: "MX", Value: "10 mx1.example.com"},
	}, ev.Records)
}

func TestDNSRecordCheckerNothingPublished(t *testing.T) {
	c := NewDNSRecordChecker(newFakeDoH(t, &fakeDoH{}))

	ev, err := c.Collect(context.Background(), DNSTarget{Hostname: "example.com", Registrable: "example.com"})
	require.NoError(t, err)
	assert.False(t, ev.HasSPF)
	assert.False(t, ev.HasDMARC)
	assert.False(t, ev.HasDKIM)
	assert.Empty(t, ev.Records)
}

func TestDNSRecordCheckerSkipsFailedSubQueries(t *testing.T) {
	f := &fakeDoH{
		zone: map[string][]string{
			"example.com. MX": {"example.com. 300 IN MX 5 mail.example.com."},
		},
		failing: map[string]bool{"example.com. TXT": true},
	}
	c := NewDNSRecordChecker(newFakeDoH(t, f))

	ev, err := c.Collect(context.Background(), DNSTarget{Hostname: "example.com", Registrable: "example.com"})
	require.NoError(t, err)
	assert.False(t, ev.HasSPF)
	assert.Equal(t, []domain.DNSRecord{{Type: "MX", Value: "5 mail.example.com"}}, ev.Records)
}

func TestDNSRecordCheckerAllFailed(t *testing.T) {
	c := NewDNSRecordChecker(newFakeDoH(t, &fakeDoH{failAll: true}))

	ev, err := c.Collect(context.Background(), DNSTarget{Hostname: "example.com"})
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Nil(t, ev)
}
