package dialog

import "fmt"

// CRLF terminates every header line the builder produces.
const CRLF = "\r\n"

// Header name literals used verbatim by the builder functions below.
const (
	hdrFrom         = "From"
	hdrTo           = "To"
	hdrContact      = "Contact"
	hdrRoute        = "Route"
	hdrCallID       = "Call-ID"
	hdrCSeq         = "CSeq"
	hdrServer       = "Server"
	hdrUserAgent    = "User-Agent"
	hdrMaxForwards  = "Max-Forwards"
	hdrReferTo      = "Refer-To"
	hdrExpires      = "Expires"
	hdrRetryAfter   = "Retry-After"
	hdrTransferRR   = "Transfer-RR"
)

// buildPartyHeader renders a From/To-shaped header value: "<party>[;tag=<tag>]".
// Used for both From and To since the grammar and tag-omission rule are
// identical (spec.md §4.5's request builder).
func buildPartyHeader(party, tag string) string {
	if tag == "" {
		return party
	}
	return fmt.Sprintf("%s;tag=%s", party, tag)
}

// buildContact computes the cached Contact header value: a bare
// "sip:[user@]host:port", with no surrounding angle brackets added here —
// callers wrap it per the header line grammar they're building (spec.md
// §4.7 gives the full line as "Contact: <sip:...>CRLF"; the builder
// returns just the address so both the dialog's cached field and a 3xx's
// caller-supplied Contact share the same construction).
func buildContact(user, host string, port int) string {
	if user == "" {
		return fmt.Sprintf("sip:%s:%d", host, port)
	}
	return fmt.Sprintf("sip:%s@%s:%d", user, host, port)
}

// contactHost picks PublicIP over LocalSIPIP when configured, per §4.7.
func contactHost(cfg Config) string {
	if cfg.PublicIP != "" {
		return cfg.PublicIP
	}
	return cfg.LocalSIPIP
}

// buildRoute computes the Route header value for an outbound mid-dialog
// request per spec.md §4.5:
//   - route non-empty: outbound-proxy prefix only when forced, then route
//   - route empty and no remote tag yet and an outbound proxy is set: the
//     proxy alone
//   - otherwise: no Route header at all (empty return + ok=false)
func buildRoute(route, remoteTag, outboundProxy string, forceOutboundProxy bool) (string, bool) {
	if route != "" {
		if forceOutboundProxy && outboundProxy != "" {
			return fmt.Sprintf("<sip:%s;lr>,%s", outboundProxy, route), true
		}
		return route, true
	}
	if remoteTag == "" && outboundProxy != "" {
		return fmt.Sprintf("<sip:%s;lr>", outboundProxy), true
	}
	return "", false
}

// buildRetryAfter renders the Retry-After header used by the overlapping-
// INVITE guard (spec.md §4.2 rule 2).
func buildRetryAfter(seconds int) string {
	return fmt.Sprintf("%s: %d%s", hdrRetryAfter, seconds, CRLF)
}
