package shared

import "time"

// Tool names in the fixed catalogue
const (
	ToolLoadEmulator           = "load_emulator"
	ToolUploadROM              = "upload_rom"
	ToolSaveGameState          = "save_game_state"
	ToolLoadGameState          = "load_game_state"
	ToolGetEmulatorPerformance = "get_emulator_performance"
	ToolListAvailableROMs      = "list_available_roms"
)

// LoadEmulatorParams represents parameters for the load_emulator tool
type LoadEmulatorParams struct {
	Category  string                 `json:"category"`
	AssetPath string                 `json:"assetPath,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// LoadEmulatorResult represents the result of the load_emulator tool
type LoadEmulatorResult struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// UploadROMParams represents parameters for the upload_rom tool
type UploadROMParams struct {
	Category string `json:"category"`
	FileName string `json:"fileName"`
	// FileData is the base64-encoded asset.
	FileData string `json:"fileData"`
	FileSize int64  `json:"fileSize"`
}

// UploadROMResult represents the result of the upload_rom tool
type UploadROMResult struct {
	StoredPath string `json:"storedPath"`
	FileName   string `json:"fileName"`
	Size       int64  `json:"size"`
}

// SaveGameStateParams represents parameters for the save_game_state tool
type SaveGameStateParams struct {
	SessionID string `json:"sessionId"`
	AssetName string `json:"assetName"`
	StateData string `json:"stateData"`
	Slot      int    `json:"slot"`
}

// SaveGameStateResult represents the result of the save_game_state tool
type SaveGameStateResult struct {
	SavePath string    `json:"savePath"`
	Slot     int       `json:"slot"`
	SavedAt  time.Time `json:"savedAt"`
}

// LoadGameStateParams represents parameters for the load_game_state tool
type LoadGameStateParams struct {
	SessionID string `json:"sessionId"`
	AssetName string `json:"assetName"`
	Slot      int    `json:"slot"`
}

// LoadGameStateResult represents the result of the load_game_state tool
type LoadGameStateResult struct {
	StateData string    `json:"stateData"`
	Slot      int       `json:"slot"`
	SavedAt   time.Time `json:"savedAt"`
}

// GetEmulatorPerformanceParams represents parameters for the get_emulator_performance tool
type GetEmulatorPerformanceParams struct {
	SessionID string   `json:"sessionId"`
	Metrics   []string `json:"metrics,omitempty"`
}

// ListAvailableROMsParams represents parameters for the list_available_roms tool
type ListAvailableROMsParams struct {
	Category       string `json:"category"`
	IncludeBuiltin bool   `json:"includeBuiltin"`
}

// ROMEntry is one row of the list_available_roms result
type ROMEntry struct {
	Name       string    `json:"name"`
	StoredPath string    `json:"storedPath"`
	Size       int64     `json:"size"`
	Builtin    bool      `json:"builtin"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
}

// ListAvailableROMsResult represents the result of the list_available_roms tool
type ListAvailableROMsResult struct {
	ROMs []ROMEntry `json:"roms"`
}
