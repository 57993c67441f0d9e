package domain

import (
	"testing"
	"time"

	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
)

func TestValidateSlot(t *testing.T) {
	tests := []struct {
		slot    int
		wantErr bool
	}{
		{slot: -1, wantErr: true},
		{slot: 0, wantErr: true},
		{slot: 1, wantErr: false},
		{slot: 5, wantErr: false},
		{slot: 10, wantErr: false},
		{slot: 11, wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateSlot(tt.slot)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ValidateSlot(%d) expected error", tt.slot)
				continue
			}
			if !mcperrors.IsValidation(err) {
				t.Errorf("ValidateSlot(%d) should return a validation error", tt.slot)
			}
		} else if err != nil {
			t.Errorf("ValidateSlot(%d) unexpected error: %v", tt.slot, err)
		}
	}
}

func TestKeys(t *testing.T) {
	if got := SaveStateKey("sess-1", "metroid", 3); got != "sess-1/metroid_slot3.record" {
		t.Errorf("SaveStateKey() = %s", got)
	}
	save := SaveStateRecord{SessionID: "sess-1", AssetName: "metroid", Slot: 3}
	if save.Key() != SaveStateKey("sess-1", "metroid", 3) {
		t.Errorf("SaveStateRecord.Key() = %s", save.Key())
	}

	record := AssetRecord{Category: "cart-8bit", StoredName: "a1b2c3.rom"}
	if got := record.Path(); got != "cart-8bit/a1b2c3.rom" {
		t.Errorf("AssetRecord.Path() = %s", got)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	claims := TokenClaims{ExpiresAt: now.Add(time.Minute)}
	if claims.Expired(now) {
		t.Error("token should not be expired before ExpiresAt")
	}
	if !claims.Expired(now.Add(time.Minute)) {
		t.Error("token should be expired at ExpiresAt")
	}

	session := Session{}
	if session.TokenExpired(now) {
		t.Error("session without token expiry should never expire")
	}
	session.TokenExpiresAt = now
	if !session.TokenExpired(now) {
		t.Error("session should be expired at TokenExpiresAt")
	}
}
