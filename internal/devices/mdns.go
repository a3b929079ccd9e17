package devices

import (
	"context"
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Multicast DNS defaults.
const (
	DefaultMDNSService = "_barcode-scanner._tcp.local."
	DefaultMDNSTimeout = 2 * time.Second

	mdnsUnicastResponse = 1 << 15
	mdnsMaxPacket       = 65536
)

//nolint:gochecknoglobals // well-known multicast group
var mdnsGroupIPv4 = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// ServiceEntry is one resolved DNS-SD instance.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     int
	Addrs    []net.IP
	Text     []string
}

// Address returns ip:port for the first address, or host:port when none resolved.
func (e ServiceEntry) Address() string {
	host := strings.TrimSuffix(e.Host, ".")
	if len(e.Addrs) > 0 {
		host = e.Addrs[0].String()
	}

	if host == "" || e.Port == 0 {
		return ""
	}

	return net.JoinHostPort(host, strconv.Itoa(e.Port))
}

// MDNSBrowser sends one DNS-SD PTR query and collects the answers until its timeout.
type MDNSBrowser struct {
	Service string
	Timeout time.Duration
	Group   *net.UDPAddr
}

// NewMDNSBrowser creates a browser for service ("" = DefaultMDNSService).
func NewMDNSBrowser(service string, timeout time.Duration) *MDNSBrowser {
	if service == "" {
		service = DefaultMDNSService
	}

	if timeout <= 0 {
		timeout = DefaultMDNSTimeout
	}

	return &MDNSBrowser{Service: dns.Fqdn(service), Timeout: timeout, Group: mdnsGroupIPv4}
}

// Browse queries the local link and returns the instances that answered.
func (b *MDNSBrowser) Browse(ctx context.Context) ([]ServiceEntry, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	q := new(dns.Msg)
	q.SetQuestion(b.Service, dns.TypePTR)
	q.RecursionDesired = false
	q.Question[0].Qclass |= mdnsUnicastResponse

	pkt, err := q.Pack()
	if err != nil {
		return nil, err
	}

	if _, err := conn.WriteToUDP(pkt, b.Group); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(b.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	col := newMDNSCollector(b.Service)
	buf := make([]byte, mdnsMaxPacket)

	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				break
			}

			return nil, err
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			continue
		}

		col.add(msg)
	}

	return col.entries(), ctx.Err()
}

type mdnsCollector struct {
	service string
	order   []string
	byName  map[string]*ServiceEntry
	hosts   map[string][]net.IP
}

func newMDNSCollector(service string) *mdnsCollector {
	return &mdnsCollector{
		service: dns.Fqdn(service),
		byName:  map[string]*ServiceEntry{},
		hosts:   map[string][]net.IP{},
	}
}

func (c *mdnsCollector) entry(name string) *ServiceEntry {
	e, ok := c.byName[name]
	if !ok {
		e = &ServiceEntry{Instance: strings.TrimSuffix(strings.TrimSuffix(name, c.service), ".")}
		c.byName[name] = e
		c.order = append(c.order, name)
	}

	return e
}

func (c *mdnsCollector) add(msg *dns.Msg) {
	records := slices.Concat(msg.Answer, msg.Ns, msg.Extra)

	for _, rr := range records {
		switch r := rr.(type) {
		case *dns.PTR:
			if strings.EqualFold(r.Hdr.Name, c.service) {
				c.entry(r.Ptr)
			}
		case *dns.SRV:
			if strings.HasSuffix(strings.ToLower(r.Hdr.Name), strings.ToLower(c.service)) {
				e := c.entry(r.Hdr.Name)
				e.Host = r.Target
				e.Port = int(r.Port)
			}
		case *dns.TXT:
			if e, ok := c.byName[r.Hdr.Name]; ok {
				e.Text = r.Txt
			}
		case *dns.A:
			c.hosts[strings.ToLower(r.Hdr.Name)] = append(c.hosts[strings.ToLower(r.Hdr.Name)], r.A)
		case *dns.AAAA:
			c.hosts[strings.ToLower(r.Hdr.Name)] = append(c.hosts[strings.ToLower(r.Hdr.Name)], r.AAAA)
		}
	}
}

func (c *mdnsCollector) entries() []ServiceEntry {
	out := make([]ServiceEntry, 0, len(c.order))
	for _, name := range c.order {
		e := *c.byName[name]
		e.Addrs = c.hosts[strings.ToLower(e.Host)]
		out = append(out, e)
	}

	return out
}
