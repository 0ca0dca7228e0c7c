package frame

// Type is the wire tag of a frame.
type Type string

// Frame tags.
const (
	TypeSubscribe   Type = "subscribe"
	TypeUnsubscribe Type = "unsubscribe"
	TypePublish     Type = "publish"
	TypeMessage     Type = "message"
	TypeError       Type = "error"
)

// Frame is one protocol message. The set of implementations is closed:
// Subscribe, Unsubscribe, Publish, Message, Error and Unknown.
type Frame interface {
	Type() Type
	isFrame()
}

// Subscribe asks the server to deliver messages matching Destination.
type Subscribe struct {
	Destination string
}

// Unsubscribe cancels a previous Subscribe for Destination.
type Unsubscribe struct {
	Destination string
}

// Publish sends Content to every subscriber of Destination.
type Publish struct {
	Destination string
	Content     any
}

// Message is a server push. Match[0] is the destination the content was
// published to; the remaining entries are pattern groups.
type Message struct {
	Content any
	Match   []string
}

// Error is a server-reported protocol error.
type Error struct {
	Details any
}

// Unknown is an inbound frame whose tag is not recognised.
type Unknown struct {
	Tag string
}

func (Subscribe) Type() Type   { return TypeSubscribe }
func (Unsubscribe) Type() Type { return TypeUnsubscribe }
func (Publish) Type() Type     { return TypePublish }
func (Message) Type() Type     { return TypeMessage }
func (Error) Type() Type       { return TypeError }
func (u Unknown) Type() Type   { return Type(u.Tag) }

func (Subscribe) isFrame()   {}
func (Unsubscribe) isFrame() {}
func (Publish) isFrame()     {}
func (Message) isFrame()     {}
func (Error) isFrame()       {}
func (Unknown) isFrame()     {}

// Target returns the addressed destination of a message, Match[0].
func (m Message) Target() string {
	if len(m.Match) == 0 {
		return ""
	}
	return m.Match[0]
}
