//go:build otpbypass

package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/garnizeh/staffing/internal/config"
	"github.com/garnizeh/staffing/internal/engine"
	"github.com/garnizeh/staffing/pkg/models"
)

func TestPayment_BypassCode(t *testing.T) {
	tests := []struct {
		name   string
		allow  bool
		wantOK bool
	}{
		{name: "allowed", allow: true, wantOK: true},
		{name: "not allowed", allow: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarnessWith(t, config.DefaultTimeouts(), func(d *engine.Deps) { d.AllowBypass = tt.allow })
			ctx := context.Background()
			_, c := h.contract(t)
			s := h.sessionNotCoded(t, c.ID, engine.BypassCode)

			got, err := h.eng.Payments.VerifyOTP(ctx, s.ID, engine.BypassCode, customer)
			if !tt.wantOK {
				if !errors.Is(err, engine.ErrInvalidCode) {
					t.Fatalf("expected ErrInvalidCode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("VerifyOTP: %v", err)
			}
			if got.Status != models.ContractActive {
				t.Fatalf("contract should be Active, got %s", got.Status)
			}
		})
	}
}
