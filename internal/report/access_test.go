package report

import (
	"testing"

	"github.com/potholewatch/backend/internal/jurisdiction"
)

func TestFilterFor(t *testing.T) {
	tests := []struct {
		name          string
		caller        Caller
		wantAuthority jurisdiction.Authority
		wantReporter  string
	}{
		{name: "tmc admin", caller: Caller{Role: "admin-tmc", UserID: "a1"}, wantAuthority: jurisdiction.TMC},
		{name: "bmc admin upper case", caller: Caller{Role: "ADMIN-BMC"}, wantAuthority: jurisdiction.BMC},
		{name: "nmmc admin", caller: Caller{Role: "admin-nmmc"}, wantAuthority: jurisdiction.NMMC},
		{name: "plain user", caller: Caller{Role: "user", UserID: "u1"}, wantReporter: "u1"},
		{name: "user id without role", caller: Caller{UserID: "u2"}, wantReporter: "u2"},
		{name: "unscoped admin", caller: Caller{Role: "admin", UserID: "a2"}},
		{name: "anonymous", caller: Caller{}},
		{name: "unknown role", caller: Caller{Role: "auditor"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := FilterFor(tc.caller)
			if tc.wantAuthority != "" {
				if q.Authority == nil || *q.Authority != tc.wantAuthority {
					t.Fatalf("expected authority %s, got %+v", tc.wantAuthority, q)
				}
			} else if q.Authority != nil {
				t.Fatalf("expected no authority filter, got %s", *q.Authority)
			}
			if q.ReporterID != tc.wantReporter {
				t.Fatalf("expected reporter %q, got %q", tc.wantReporter, q.ReporterID)
			}
		})
	}
}

func TestCanModify(t *testing.T) {
	r := &Report{Authority: jurisdiction.TMC, ReporterID: "u1"}

	if !canModify(Caller{Role: "admin-tmc"}, r, false) {
		t.Fatal("tmc admin should modify tmc report")
	}
	if canModify(Caller{Role: "admin-bmc"}, r, true) {
		t.Fatal("bmc admin must not modify tmc report")
	}
	if !canModify(Caller{Role: "admin"}, r, false) {
		t.Fatal("unscoped admin should modify any report")
	}
	if canModify(Caller{Role: "user", UserID: "u1"}, r, false) {
		t.Fatal("reporter must not resolve")
	}
	if !canModify(Caller{Role: "user", UserID: "u1"}, r, true) {
		t.Fatal("reporter should delete own report")
	}
	if canModify(Caller{Role: "user", UserID: "u2"}, r, true) {
		t.Fatal("other users must not delete")
	}
}
