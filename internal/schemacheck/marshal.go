package schemacheck

import (
	"encoding/json"

	"github.com/agentcore/agentcore/internal/events"
)

func marshalEvent(ev events.Event) ([]byte, error) {
	return json.Marshal(ev)
}
