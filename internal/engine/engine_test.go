package engine

import (
	"context"
	"testing"

	"chiprails/internal/ledger"
	"chiprails/internal/oracle"

	"github.com/rs/zerolog"
)

func TestNew_SeedsOracleTuning(t *testing.T) {
	client := oracle.NewFakeClient()
	eng := New(Config{
		Operator:       testOperator,
		CustodyAddress: testCustody,
		Oracle:         client,
		OracleTuning: oracle.Config{
			KeyHash:          "0xkeyhash",
			SubscriptionID:   9,
			CallbackGasLimit: 300_000,
			Confirmations:    5,
		},
		Ledger: ledger.NewFakeLedger(testOperator, testCustody),
	}, zerolog.Nop())

	// The configured tuning rides along with the very first request; no
	// operator update is needed after a restart.
	if _, err := eng.Randomness.RequestSeed(context.Background(), testOperator); err != nil {
		t.Fatalf("request seed: %v", err)
	}
	got := client.LastConfig()
	if got.KeyHash != "0xkeyhash" || got.SubscriptionID != 9 {
		t.Fatalf("bootstrap tuning not forwarded: %+v", got)
	}
	if got.CallbackGasLimit != 300_000 || got.Confirmations != 5 {
		t.Fatalf("bootstrap tuning not forwarded: %+v", got)
	}
	if eng.Randomness.OracleConfig().SubscriptionID != 9 {
		t.Fatal("tuning not recorded on the coordinator")
	}
}
