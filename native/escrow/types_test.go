package escrow

import (
	"math/big"
	"testing"
)

func TestParseMethodLabel(t *testing.T) {
	cases := []struct {
		label   string
		want    PaymentMethod
		wantErr bool
	}{
		{"ETH", PayNative, false},
		{"eth", PayNative, false},
		{" Eth ", PayNative, false},
		{"BLOCKS", PayToken, false},
		{"blocks", PayToken, false},
		{"", 0, true},
		{"USDC", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseMethodLabel(tc.label)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMethodLabel(%q): expected error", tc.label)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMethodLabel(%q): %v", tc.label, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMethodLabel(%q) = %s, want %s", tc.label, got, tc.want)
		}
	}
}

func TestJobStateStrings(t *testing.T) {
	if StateCreated.String() != "CREATED" || StateLocked.String() != "LOCKED" ||
		StateReleased.String() != "RELEASED" || StateCancelled.String() != "CANCELLED" {
		t.Fatal("unexpected state string rendering")
	}
	if StateCreated.Terminal() || StateLocked.Terminal() {
		t.Fatal("CREATED and LOCKED must not be terminal")
	}
	if !StateReleased.Terminal() || !StateCancelled.Terminal() {
		t.Fatal("RELEASED and CANCELLED must be terminal")
	}
}

func TestSanitizeJob(t *testing.T) {
	if _, err := SanitizeJob(nil); err == nil {
		t.Fatal("nil job must be rejected")
	}
	job := &Job{ID: 1, Method: PayNative, State: StateCreated}
	sanitized, err := SanitizeJob(job)
	if err != nil {
		t.Fatalf("SanitizeJob: %v", err)
	}
	if sanitized.Amount == nil || sanitized.Amount.Sign() != 0 {
		t.Fatalf("nil amount must normalise to zero, got %v", sanitized.Amount)
	}
	job.Amount = big.NewInt(-1)
	if _, err := SanitizeJob(job); err == nil {
		t.Fatal("negative amount must be rejected")
	}
	job.Amount = big.NewInt(1)
	job.State = JobState(9)
	if _, err := SanitizeJob(job); err == nil {
		t.Fatal("out-of-range state must be rejected")
	}
	job.State = StateCreated
	job.Method = PaymentMethod(7)
	if _, err := SanitizeJob(job); err == nil {
		t.Fatal("out-of-range method must be rejected")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	job := &Job{ID: 7, Amount: big.NewInt(5), Method: PayToken, State: StateLocked}
	clone := job.Clone()
	clone.Amount.SetInt64(99)
	clone.State = StateReleased
	if job.Amount.Cmp(big.NewInt(5)) != 0 || job.State != StateLocked {
		t.Fatal("mutating a clone must not affect the original")
	}
}
