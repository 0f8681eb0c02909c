package ingestion

// Payload shapes follow the Evolution API webhook contract.

type webhookPayload struct {
	Event string      `json:"event" validate:"required,min=1,max=100"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	InstanceID string           `json:"instanceId"`
	Messages   []inboundMessage `json:"messages" validate:"max=100,dive"`
}

type inboundMessage struct {
	RemoteJID    string `json:"remoteJid" validate:"max=100"`
	FromMe       bool   `json:"fromMe"`
	ID           string `json:"id" validate:"max=255"`
	Conversation string `json:"conversation" validate:"max=10000"`
	// Unix seconds; zero means the gateway omitted it.
	MessageTimestamp int64 `json:"messageTimestamp"`
}

// eventMessagesUpsert is the only event type this gate processes.
const eventMessagesUpsert = "messages.upsert"
