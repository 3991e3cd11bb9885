package domain

// MessageKind tags the variant carried by an InboundMessage.
type MessageKind int

const (
	MessageUnknown MessageKind = iota
	MessageTrade
	MessageError
	MessagePing
	MessageWelcome
	MessageConfirmation
	MessageChat
)

// String returns the string representation of MessageKind
func (k MessageKind) String() string {
	switch k {
	case MessageTrade:
		return "trade"
	case MessageError:
		return "error"
	case MessagePing:
		return "ping"
	case MessageWelcome:
		return "welcome"
	case MessageConfirmation:
		return "confirmation"
	case MessageChat:
		return "chat"
	default:
		return "unknown"
	}
}

// PriceUpdate is one decoded trade/ticker record.
type PriceUpdate struct {
	Symbol string
	Price  float64
}

// InboundMessage is the decoded form of one frame.
//
//	Trade        -> Trades (one or more records, frame order)
//	Error        -> Text (provider message)
//	Confirmation -> Symbol
//	Chat         -> Text
type InboundMessage struct {
	Kind   MessageKind
	Trades []PriceUpdate
	Symbol string
	Text   string
}

// Unknown is the zero message returned for frames the codec cannot use.
func Unknown() InboundMessage {
	return InboundMessage{Kind: MessageUnknown}
}
