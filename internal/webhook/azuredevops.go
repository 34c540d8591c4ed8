package webhook

import "encoding/json"

// azureDevOpsPreamble opens every build notification message.
const azureDevOpsPreamble = "A new build from Azure DevOps! :smile:"

// AzureDevOps handles Azure DevOps service-hook build notifications. The
// payload carries a pre-rendered markdown fragment in
// detailedMessage.markdown; it is forwarded verbatim, the downstream renderer
// interprets it.
type AzureDevOps struct{}

func (AzureDevOps) Name() string { return "azuredevops" }

func (AzureDevOps) DefaultTopic() string { return "coverage" }

func (AzureDevOps) Parse(payload []byte) (string, error) {
	// Pointer fields distinguish absent from empty: presence of both
	// detailedMessage and its markdown key is required, an empty markdown
	// string is legal.
	var p struct {
		DetailedMessage *struct {
			Markdown *string `json:"markdown"`
		} `json:"detailedMessage"`
	}

	if err := json.Unmarshal(payload, &p); err != nil {
		return "", invalidJSON()
	}
	if p.DetailedMessage == nil {
		return "", missingField("detailedMessage")
	}
	if p.DetailedMessage.Markdown == nil {
		return "", missingField("detailedMessage.markdown")
	}

	return azureDevOpsPreamble + "\n" + *p.DetailedMessage.Markdown, nil
}
