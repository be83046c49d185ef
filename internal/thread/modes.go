package thread

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dbrandt/legate/internal/domain"
)

// Mask is one collaboration-mode profile advertised by the backend.
type Mask struct {
	Name                  string  `json:"name"`
	Mode                  string  `json:"mode"`
	ReasoningEffort       *string `json:"reasoning_effort"`
	DeveloperInstructions *string `json:"developer_instructions"`
}

// ModeSettings is the settings half of a turn's collaboration-mode payload.
// Null effort/instructions are carried through explicitly, not omitted.
type ModeSettings struct {
	Model                 string  `json:"model"`
	ReasoningEffort       *string `json:"reasoning_effort"`
	DeveloperInstructions *string `json:"developer_instructions"`
}

// ModePayload is attached to turn/start to select backend behavior.
type ModePayload struct {
	Mode     string       `json:"mode"`
	Settings ModeSettings `json:"settings"`
}

// ListModes fetches the collaboration-mode masks the backend supports.
func ListModes(ctx context.Context, c RPC) ([]Mask, error) {
	result, err := c.Request(ctx, "collaborationMode/list", nil)
	if err != nil {
		return nil, fmt.Errorf("thread: list collaboration modes: %w", err)
	}
	var out struct {
		Data []Mask `json:"data"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("thread: decode collaboration modes: %w", err)
	}
	return out.Data, nil
}

// SelectMode finds the mask for the requested mode and merges the caller's
// model with the mask's effort and instruction fields.
//
// A mask matches on its mode field, or on its name compared
// case-insensitively. No match is a hard failure.
func SelectMode(masks []Mask, mode domain.Mode, model string) (ModePayload, error) {
	for _, mask := range masks {
		if mask.Mode == string(mode) || strings.EqualFold(mask.Name, string(mode)) {
			return ModePayload{
				Mode: mask.Mode,
				Settings: ModeSettings{
					Model:                 model,
					ReasoningEffort:       mask.ReasoningEffort,
					DeveloperInstructions: mask.DeveloperInstructions,
				},
			}, nil
		}
	}
	return ModePayload{}, fmt.Errorf("thread: collaboration mode %q is not available", mode)
}
