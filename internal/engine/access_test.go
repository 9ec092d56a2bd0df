package engine

import (
	"errors"
	"testing"
)

func TestAccessControl_Operator(t *testing.T) {
	ac := NewAccessControl("0xOperator")

	if err := ac.RequireOperator("0xoperator"); err != nil {
		t.Fatalf("operator check should be case-insensitive: %v", err)
	}
	if err := ac.RequireOperator("0xsomeoneelse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := ac.RequireOperator(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty caller, got %v", err)
	}
}

func TestAccessControl_Arbiters(t *testing.T) {
	ac := NewAccessControl("0xOperator")

	if err := ac.AddArbiter("0xplayer", "0xarbiter"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-operator must not add arbiters, got %v", err)
	}
	if err := ac.AddArbiter("0xOperator", "0xArbiter"); err != nil {
		t.Fatalf("add arbiter: %v", err)
	}
	if !ac.IsArbiter("0xarbiter") {
		t.Fatal("expected arbiter after registration")
	}
	if ac.IsArbiter("0xplayer") {
		t.Fatal("unexpected arbiter")
	}
}
