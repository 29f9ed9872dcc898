package security

import (
	"errors"
	"testing"

	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/model"
)

func passingVerdicts() model.SecurityVerdicts {
	return model.SecurityVerdicts{SPF: model.VerdictPass, DKIM: model.VerdictPass, DMARC: model.VerdictPass, Present: true}
}

func TestValidatePassesCleanMessage(t *testing.T) {
	policy := Policy{RequireSPF: true, RequireDKIM: true, RequireDMARC: true}
	if err := Validate("alice@example.com", passingVerdicts(), policy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsFailedSPFWhenRequired(t *testing.T) {
	v := passingVerdicts()
	v.SPF = model.VerdictFail
	err := Validate("alice@example.com", v, Policy{RequireSPF: true})
	var me *mailerr.Error
	if !errors.As(err, &me) || me.Kind != mailerr.SecurityPolicyFailed {
		t.Fatalf("expected SecurityPolicyFailed, got %v", err)
	}
}

func TestValidateAlwaysRejectsVirusFail(t *testing.T) {
	v := passingVerdicts()
	v.Virus = model.VerdictFail
	err := Validate("alice@example.com", v, Policy{})
	var me *mailerr.Error
	if !errors.As(err, &me) || me.Kind != mailerr.SecurityPolicyFailed {
		t.Fatalf("expected SecurityPolicyFailed, got %v", err)
	}
}

func TestValidateSpamOnlyRejectsWhenConfigured(t *testing.T) {
	v := passingVerdicts()
	v.Spam = model.VerdictFail
	if err := Validate("alice@example.com", v, Policy{}); err != nil {
		t.Fatalf("expected spam fail ignored by default, got %v", err)
	}
	err := Validate("alice@example.com", v, Policy{RejectOnSpam: true})
	var me *mailerr.Error
	if !errors.As(err, &me) || me.Kind != mailerr.SecurityPolicyFailed {
		t.Fatalf("expected SecurityPolicyFailed, got %v", err)
	}
}

func TestValidateRejectsDisallowedSenderDomain(t *testing.T) {
	policy := Policy{AllowedSenderDomains: []string{"trusted.com"}}
	err := Validate("alice@untrusted.com", passingVerdicts(), policy)
	var me *mailerr.Error
	if !errors.As(err, &me) || me.Kind != mailerr.SenderDomainNotAllowed {
		t.Fatalf("expected SenderDomainNotAllowed, got %v", err)
	}
}

func TestValidateMissingVerdictsRejectedByDefault(t *testing.T) {
	policy := Policy{RequireVerdictsForObjectEvents: true}
	err := Validate("alice@example.com", model.SecurityVerdicts{Present: false}, policy)
	var me *mailerr.Error
	if !errors.As(err, &me) || me.Kind != mailerr.MissingSecurityVerdicts {
		t.Fatalf("expected MissingSecurityVerdicts, got %v", err)
	}
}

func TestValidateMissingVerdictsAllowedWhenDowngraded(t *testing.T) {
	policy := Policy{RequireVerdictsForObjectEvents: false}
	if err := Validate("alice@example.com", model.SecurityVerdicts{Present: false}, policy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}