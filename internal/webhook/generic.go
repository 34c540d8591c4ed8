package webhook

import "encoding/json"

// Generic accepts {"text": "..."} from any system without a dedicated
// integration and forwards the text as-is.
type Generic struct{}

func (Generic) Name() string { return "generic" }

func (Generic) DefaultTopic() string { return "notifications" }

func (Generic) Parse(payload []byte) (string, error) {
	var p struct {
		Text *string `json:"text"`
	}

	if err := json.Unmarshal(payload, &p); err != nil {
		return "", invalidJSON()
	}
	if p.Text == nil {
		return "", missingField("text")
	}

	return *p.Text, nil
}
