package devices

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMDNSCollector(t *testing.T) {
	t.Parallel()

	const (
		service  = "_barcode-scanner._tcp.local."
		instance = "Lobby._barcode-scanner._tcp.local."
		target   = "lobby-scanner.local."
	)

	hdr := func(name string, rrtype uint16) dns.RR_Header {
		return dns.RR_Header{Name: name, Rrtype: rrtype, Class: dns.ClassINET, Ttl: 120}
	}

	first := new(dns.Msg)
	first.Answer = []dns.RR{&dns.PTR{Hdr: hdr(service, dns.TypePTR), Ptr: instance}}
	first.Extra = []dns.RR{
		&dns.SRV{Hdr: hdr(instance, dns.TypeSRV), Target: target, Port: 8080},
		&dns.TXT{Hdr: hdr(instance, dns.TypeTXT), Txt: []string{"model=X1"}},
	}

	second := new(dns.Msg)
	second.Answer = []dns.RR{&dns.A{Hdr: hdr(target, dns.TypeA), A: net.IPv4(192, 168, 1, 40)}}

	unrelated := new(dns.Msg)
	unrelated.Answer = []dns.RR{&dns.PTR{Hdr: hdr("_http._tcp.local.", dns.TypePTR), Ptr: "web._http._tcp.local."}}

	col := newMDNSCollector(service)
	col.add(first)
	col.add(unrelated)
	col.add(second)

	entries := col.entries()
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "Lobby", e.Instance)
	assert.Equal(t, 8080, e.Port)
	assert.Equal(t, []string{"model=X1"}, e.Text)
	assert.Equal(t, "192.168.1.40:8080", e.Address())
}

func TestServiceEntry_AddressWithoutPort(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ServiceEntry{Host: "x.local."}.Address())
}
