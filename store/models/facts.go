package models

import (
	"strings"

	"github.com/cse-security/phishmon/enrich"
)

// Facts reconstructs the enrichment bundle stored on the detection row.
func (d *Detection) Facts() enrich.Facts {
	f := enrich.Facts{
		RegistrationAgeDays: d.RegistrationAgeDays,
		IP:                  d.IP,
		ASN:                 d.ASN,
		CountryCode:         d.CountryCode,
		ISP:                 d.ISP,
		Registrar:           d.Registrar,
		Registrant:          d.Registrant,
		VisualSimilarity:    d.VisualSimilarity,
		ContentSimilarity:   d.ContentSimilarity,
		HasLoginForm:        d.HasLoginForm,
		HasPaymentForm:      d.HasPaymentForm,
		HasBinaryHosting:    d.HasBinaryHosting,
	}

	if d.SSLIssuer != "" || d.SSLNotBefore != nil {
		ssl := enrich.SSLInfo{Issuer: d.SSLIssuer}
		if d.SSLNotBefore != nil {
			ssl.NotBefore = *d.SSLNotBefore
		}
		if d.SSLNotAfter != nil {
			ssl.NotAfter = *d.SSLNotAfter
		}
		f.SSL = &ssl
	}

	if d.BlacklistFeeds != "" {
		f.BlacklistHits = map[string]bool{}
		for _, feed := range strings.Split(d.BlacklistFeeds, ",") {
			f.BlacklistHits[feed] = true
		}
	}

	return f
}

// ApplyFacts overwrites the enrichment columns with a fresh bundle.
func (d *Detection) ApplyFacts(f enrich.Facts) {
	d.RegistrationAgeDays = f.RegistrationAgeDays
	d.IP = f.IP
	d.ASN = f.ASN
	d.CountryCode = f.CountryCode
	d.ISP = f.ISP
	d.Registrar = f.Registrar
	d.Registrant = f.Registrant
	d.VisualSimilarity = f.VisualSimilarity
	d.ContentSimilarity = f.ContentSimilarity
	d.HasLoginForm = f.HasLoginForm
	d.HasPaymentForm = f.HasPaymentForm
	d.HasBinaryHosting = f.HasBinaryHosting

	if f.SSL != nil {
		d.SSLIssuer = f.SSL.Issuer
		nb, na := f.SSL.NotBefore, f.SSL.NotAfter
		d.SSLNotBefore = &nb
		d.SSLNotAfter = &na
	} else {
		d.SSLIssuer = ""
		d.SSLNotBefore = nil
		d.SSLNotAfter = nil
	}

	feeds := f.BlacklistFeedsHit()
	d.BlacklistFeeds = strings.Join(feeds, ",")
	d.BlacklistHit = len(feeds) > 0

	d.ContentHash = f.Fingerprint()
}
