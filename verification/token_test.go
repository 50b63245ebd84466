package verification

import (
	"regexp"
	"testing"
)

var sixDigits = regexp.MustCompile(`^[1-9][0-9]{5}$`)

type stubAccount struct {
	digest string
}

func (a stubAccount) VerificationTokenDigest() string { return a.digest }

func TestOTPTokenRoundTrip(t *testing.T) {
	for i := 0; i < 5; i++ {
		tok, err := NewOTPToken()
		if err != nil {
			t.Fatalf("NewOTPToken error: %v", err)
		}
		if !sixDigits.MatchString(tok.PlainText) {
			t.Fatalf("expected six-digit code, got %q", tok.PlainText)
		}
		if tok.String() != tok.PlainText {
			t.Fatal("String must return plaintext")
		}
		if tok.Digest == tok.PlainText {
			t.Fatal("digest must not equal plaintext")
		}
		if !Matches(tok.PlainText, tok.Digest) {
			t.Fatal("plaintext must match its own digest")
		}
	}
}

func TestLinkTokenShape(t *testing.T) {
	tok, err := NewLinkToken()
	if err != nil {
		t.Fatalf("NewLinkToken error: %v", err)
	}
	if len(tok.PlainText) != 16 {
		t.Fatalf("expected 16 chars, got %d", len(tok.PlainText))
	}
	if !Matches(tok.PlainText, tok.Digest) {
		t.Fatal("link token must match its digest")
	}
	if Matches("not-the-token", tok.Digest) {
		t.Fatal("unexpected match for wrong token")
	}
}

func TestMatchesEmptyInputs(t *testing.T) {
	if Matches("", "x") || Matches("x", "") {
		t.Fatal("empty inputs must not match")
	}
	if Matches("123456", "garbage-digest") {
		t.Fatal("malformed digest must not match")
	}
}

func TestAdapters(t *testing.T) {
	tests := []struct {
		name    string
		adapter Adapter
	}{
		{name: MethodOTP, adapter: OTPAdapter{}},
		{name: MethodWebURL, adapter: LinkAdapter{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := tc.adapter.CreateVerificationToken()
			if err != nil {
				t.Fatalf("CreateVerificationToken error: %v", err)
			}
			acct := stubAccount{digest: tok.Digest}
			if !tc.adapter.Verify(acct, tok.PlainText) {
				t.Fatal("expected adapter to verify its own token")
			}
			if tc.adapter.Verify(acct, tok.PlainText+"x") {
				t.Fatal("expected mismatch for altered token")
			}
			if tc.adapter.Verify(stubAccount{}, tok.PlainText) {
				t.Fatal("account without digest must not verify")
			}
			if tc.adapter.Verify(nil, tok.PlainText) {
				t.Fatal("nil account must not verify")
			}
		})
	}
}
