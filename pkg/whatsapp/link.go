// Package whatsapp builds pre-filled chat deep links for broker
// handoffs. The service never sends messages itself; it only constructs
// the link the caller opens.
package whatsapp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joselopes-lab/brokerdesk/pkg/phone"
)

const baseURL = "https://wa.me/"

// HandoffLink returns a wa.me deep link addressed to brokerPhone with
// message pre-filled. brokerPhone may be in any national or
// international format; defaultRegion resolves numbers without a prefix.
func HandoffLink(brokerPhone, defaultRegion, message string) (string, error) {
	e164, err := phone.NormalizeE164(brokerPhone, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("broker phone is not linkable: %w", err)
	}

	link := baseURL + strings.TrimPrefix(e164, "+")
	if message != "" {
		link += "?text=" + url.QueryEscape(message)
	}
	return link, nil
}

// HandoffMessage composes the pre-filled text for a routed lead.
func HandoffMessage(brokerName, leadName, leadPhone, propertyInterest, city, state string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! New lead from the site: %s", brokerName, leadName)
	if propertyInterest != "" {
		fmt.Fprintf(&b, ", interested in %s", propertyInterest)
	}
	fmt.Fprintf(&b, " (%s, %s).", city, state)
	if leadPhone != "" {
		fmt.Fprintf(&b, " Contact: %s.", leadPhone)
	}
	return b.String()
}
