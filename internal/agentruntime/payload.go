package agentruntime

import (
	"encoding/json"
	"fmt"
)

// botPayload is the command.payload shape this agent expects for the
// start_bot/stop_bot/drain commands — its own convention, opaque to the
// orchestrator.
type botPayload struct {
	BotInstanceID string `json:"bot_instance_id"`
	Tenant        string `json:"tenant"`
	SizeMB        int64  `json:"size_mb"`
}

// decodeBotPayload accepts the generic interface{} a Command arrives with
// after JSON decoding (map[string]interface{} in practice) and re-marshals
// it into the concrete shape this agent expects.
func decodeBotPayload(raw interface{}) (botPayload, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return botPayload{}, fmt.Errorf("agentruntime: re-marshaling command payload: %w", err)
	}
	var p botPayload
	if err := json.Unmarshal(buf, &p); err != nil {
		return botPayload{}, fmt.Errorf("agentruntime: decoding command payload: %w", err)
	}
	if p.BotInstanceID == "" {
		return botPayload{}, fmt.Errorf("agentruntime: command payload missing bot_instance_id")
	}
	return p, nil
}
