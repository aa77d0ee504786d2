package enums

import "testing"

func TestDonationStatusTransitions(t *testing.T) {
	tests := []struct {
		from DonationStatus
		to   DonationStatus
		want bool
	}{
		{DonationStatusPending, DonationStatusCompleted, true},
		{DonationStatusPending, DonationStatusFailed, true},
		{DonationStatusPending, DonationStatusRefunded, false},
		{DonationStatusCompleted, DonationStatusRefunded, true},
		{DonationStatusCompleted, DonationStatusFailed, false},
		{DonationStatusFailed, DonationStatusCompleted, false},
		{DonationStatusRefunded, DonationStatusCompleted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("%s -> %s: got %v want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDonorStatusFor(t *testing.T) {
	cases := map[DonationStatus]DonorDonationStatus{
		DonationStatusPending:   DonorStatusProcessing,
		DonationStatusCompleted: DonorStatusThankYou,
		DonationStatusFailed:    DonorStatusFailed,
		DonationStatusRefunded:  DonorStatusRefunded,
	}
	for in, want := range cases {
		if got := DonorStatusFor(in); got != want {
			t.Fatalf("DonorStatusFor(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestParseCurrencyIsCaseInsensitive(t *testing.T) {
	got, err := ParseCurrency("usd")
	if err != nil || got != CurrencyUSD {
		t.Fatalf("expected USD, got %q (%v)", got, err)
	}
	if _, err := ParseCurrency("eur"); err == nil {
		t.Fatal("expected eur to be rejected")
	}
}

func TestProjectStatusAcceptsDonations(t *testing.T) {
	if !ProjectStatusActive.AcceptsDonations() || !ProjectStatusFunded.AcceptsDonations() {
		t.Fatal("active and funded projects accept donations")
	}
	if ProjectStatusPaused.AcceptsDonations() || ProjectStatusCompleted.AcceptsDonations() {
		t.Fatal("paused and completed projects reject donations")
	}
}

func TestSettlementEventTypeParsing(t *testing.T) {
	for _, raw := range []string{"checkout_completed", "charge_succeeded", "charge_failed", "charge_refunded", "unknown", "funding_adjustment"} {
		if _, err := ParseSettlementEventType(raw); err != nil {
			t.Fatalf("expected %s to parse: %v", raw, err)
		}
	}
	if _, err := ParseSettlementEventType("payment_intent.created"); err == nil {
		t.Fatal("expected raw processor type to be rejected")
	}
	if !SettlementChargeRefunded.AffectsFunding() || !SettlementFundingAdjustment.AffectsFunding() || SettlementChargeFailed.AffectsFunding() {
		t.Fatal("unexpected AffectsFunding classification")
	}
}
