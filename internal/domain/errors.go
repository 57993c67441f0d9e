package domain

import (
	"fmt"

	mcperrors "github.com/FreePeak/emulator-mcp-server/internal/domain/shared/errors"
)

// Common domain errors
var (
	ErrUnauthenticated = mcperrors.NewAuthError("connection is not authenticated")
	ErrTokenExpired    = mcperrors.NewAuthError("token expired")
	ErrTokenInvalid    = mcperrors.NewAuthError("token invalid")
)

// NewToolNotFoundError indicates that a requested tool was not found.
func NewToolNotFoundError(name string) *mcperrors.MCPError {
	return mcperrors.NewNotFoundError(fmt.Sprintf("tool %s not found", name), name)
}

// NewSessionNotFoundError indicates that a requested session was not found.
func NewSessionNotFoundError(id string) *mcperrors.MCPError {
	return mcperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id), id)
}

// NewSaveStateNotFoundError indicates that no record exists for the triple.
func NewSaveStateNotFoundError(sessionID, assetName string, slot int) *mcperrors.MCPError {
	return mcperrors.NewNotFoundError("not found", SaveStateKey(sessionID, assetName, slot))
}

// NewAssetNotFoundError indicates that a stored asset path does not exist.
func NewAssetNotFoundError(assetPath string) *mcperrors.MCPError {
	return mcperrors.NewNotFoundError(fmt.Sprintf("asset %s not found", assetPath), assetPath)
}

// NewSlotRangeError indicates a slot outside the inclusive save range.
func NewSlotRangeError(slot int) *mcperrors.MCPError {
	return mcperrors.NewValidationError("slot", fmt.Sprintf("%d is outside %d..%d", slot, MinSlot, MaxSlot))
}
