package client

// Topic is the closed set of in-process notifications.
type Topic uint8

const (
	ServerSaidHello Topic = iota
	ServerAddedPlayer
	ServerUpdatedPlayer
	ServerUpdatedMe
	ServerRemovedPlayer
	ClientUpdatedPlayer
	ClientMovedMe

	topicCount
)

var topicNames = [topicCount]string{
	"server-said-hello",
	"server-added-player",
	"server-updated-player",
	"server-updated-me",
	"server-removed-player",
	"client-updated-player",
	"client-moved-me",
}

func (t Topic) String() string {
	if t >= topicCount {
		return "unknown"
	}
	return topicNames[t]
}

// Message is one notification. Identity names the player concerned, if any.
type Message struct {
	Topic    Topic
	Identity string
	// Moved is set on player updates whose position changed.
	Moved bool
}

// Bus delivers messages synchronously, in subscription order, on the
// caller's goroutine. The client is single threaded, so it has no locks.
type Bus struct {
	subs [topicCount][]func(Message)
}

// Subscribe registers fn for topic.
func (b *Bus) Subscribe(topic Topic, fn func(Message)) {
	if topic >= topicCount {
		return
	}
	b.subs[topic] = append(b.subs[topic], fn)
}

// Publish delivers msg to every subscriber of its topic.
func (b *Bus) Publish(msg Message) {
	if msg.Topic >= topicCount {
		return
	}
	for _, fn := range b.subs[msg.Topic] {
		fn(msg)
	}
}
