package enrich

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"
)

var DefaultProberOpts = ProberOpts{
	Resolver: "8.8.8.8:53",
	Timeout:  5 * time.Second,
}

type ProberOpts struct {
	Resolver string        `yaml:"resolver"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DNSProber answers reachability questions with direct DNS queries, so a
// wedged HTTP endpoint cannot stall the monitoring pool.
type DNSProber struct {
	client   *dns.Client
	resolver string
}

func NewDNSProber(opts ProberOpts) *DNSProber {
	if opts.Resolver == "" {
		opts.Resolver = DefaultProberOpts.Resolver
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultProberOpts.Timeout
	}
	c := &dns.Client{
		Timeout: opts.Timeout,
	}
	return &DNSProber{
		client:   c,
		resolver: opts.Resolver,
	}
}

// IsReachable reports whether the domain resolves to at least one address
// record. Lookup failures count as unreachable.
func (p *DNSProber) IsReachable(ctx context.Context, domain string) bool {
	fqdn := dns.Fqdn(strings.ToLower(strings.TrimSpace(domain)))

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := &dns.Msg{}
		msg.SetQuestion(fqdn, qtype)

		in, _, err := p.client.ExchangeContext(ctx, msg, p.resolver)
		if err != nil {
			log.Debug().Msgf("lookup %s (type %d) failed: %s", domain, qtype, err)
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			continue
		}
		if len(in.Answer) > 0 {
			return true
		}
	}
	return false
}

// ResolveAddr returns the first address record for the domain, for fact
// bundles that need a concrete IP.
func (p *DNSProber) ResolveAddr(ctx context.Context, domain string) (net.IP, error) {
	fqdn := dns.Fqdn(strings.ToLower(strings.TrimSpace(domain)))

	msg := &dns.Msg{}
	msg.SetQuestion(fqdn, dns.TypeA)

	in, _, err := p.client.ExchangeContext(ctx, msg, p.resolver)
	if err != nil {
		return nil, err
	}
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("no address records for '%s'", domain)
}

// DNSEnricher is the baseline Enricher: it resolves the address record and
// leaves every other fact unknown. Richer collaborators (WHOIS, certificate
// and page analysis) wrap or replace it.
type DNSEnricher struct {
	prober *DNSProber
}

func NewDNSEnricher(opts ProberOpts) *DNSEnricher {
	return &DNSEnricher{prober: NewDNSProber(opts)}
}

func (e *DNSEnricher) Enrich(ctx context.Context, domain string) (Facts, error) {
	ip, err := e.prober.ResolveAddr(ctx, domain)
	if err != nil {
		return Facts{}, err
	}
	return Facts{IP: ip.String()}, nil
}

func (e *DNSEnricher) IsReachable(ctx context.Context, domain string) bool {
	return e.prober.IsReachable(ctx, domain)
}
