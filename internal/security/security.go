// Package security enforces the SPF/DKIM/DMARC/virus/spam policy and the
// sender-domain allowlist against an inbound message's upstream verdicts.
package security

import (
	"strings"

	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/model"
)

// Policy carries the configured enforcement flags, sourced from
// config.SecurityConfig.
type Policy struct {
	RequireSPF            bool
	RequireDKIM           bool
	RequireDMARC          bool
	RejectOnSpam          bool
	AllowedSenderDomains  []string
	RequireVerdictsForObjectEvents bool
}

// Validate enforces the policy against a sender address and its verdicts.
// When verdicts.Present is false (an object-store-triggered event with no
// SES verdicts attached), verdict-based checks are skipped; the policy's
// RequireVerdictsForObjectEvents flag decides whether that absence itself
// is rejected with MissingSecurityVerdicts.
func Validate(sender string, verdicts model.SecurityVerdicts, policy Policy) error {
	if !verdicts.Present {
		if policy.RequireVerdictsForObjectEvents {
			return mailerr.New(mailerr.MissingSecurityVerdicts, "object-store event carries no security verdicts")
		}
	} else {
		if policy.RequireSPF && verdicts.SPF != model.VerdictPass {
			return mailerr.New(mailerr.SecurityPolicyFailed, "SPF verdict is not PASS")
		}
		if policy.RequireDKIM && verdicts.DKIM != model.VerdictPass {
			return mailerr.New(mailerr.SecurityPolicyFailed, "DKIM verdict is not PASS")
		}
		if policy.RequireDMARC && verdicts.DMARC != model.VerdictPass {
			return mailerr.New(mailerr.SecurityPolicyFailed, "DMARC verdict is not PASS")
		}
		if verdicts.Virus == model.VerdictFail {
			return mailerr.New(mailerr.SecurityPolicyFailed, "virus verdict is FAIL")
		}
		if policy.RejectOnSpam && verdicts.Spam == model.VerdictFail {
			return mailerr.New(mailerr.SecurityPolicyFailed, "spam verdict is FAIL")
		}
	}

	if len(policy.AllowedSenderDomains) > 0 && !domainAllowed(sender, policy.AllowedSenderDomains) {
		return mailerr.New(mailerr.SenderDomainNotAllowed, "sender domain is not in the allowed list")
	}

	return nil
}

func domainAllowed(sender string, allowed []string) bool {
	at := strings.LastIndexByte(sender, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(sender[at+1:])
	for _, d := range allowed {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}