// Package events defines the closed set of push topics, validates their
// payloads against a CUE schema, and fans decoded events out to in-process
// subscribers.
package events

import (
	"fmt"
	"time"

	"github.com/roach88/benrt/internal/rpc"
)

// Topic identifies a push channel.
type Topic int

const (
	TopicScanProgress Topic = iota + 1
	TopicQueueState
	TopicPlayerState
)

var topicNames = map[Topic]string{
	TopicScanProgress: "scanner:progress",
	TopicQueueState:   "queue:state",
	TopicPlayerState:  "player:state",
}

var topicDefs = map[Topic]string{
	TopicScanProgress: "#ScanProgress",
	TopicQueueState:   "#QueueState",
	TopicPlayerState:  "#PlayerState",
}

// Topics returns every topic in declaration order.
func Topics() []Topic {
	return []Topic{TopicScanProgress, TopicQueueState, TopicPlayerState}
}

// String returns the wire name of t.
func (t Topic) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Topic(%d)", int(t))
}

// ParseTopic looks up a topic by its wire name.
func ParseTopic(name string) (Topic, bool) {
	for t, n := range topicNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Event is one decoded push notification. Payload holds rpc.ScanProgress,
// rpc.QueueState or rpc.PlayerState according to Topic.
type Event struct {
	Topic      Topic
	Payload    any
	ReceivedAt time.Time
}

// ScanProgress returns the payload of a scanner:progress event.
func (e Event) ScanProgress() (rpc.ScanProgress, bool) {
	p, ok := e.Payload.(rpc.ScanProgress)
	return p, ok && e.Topic == TopicScanProgress
}

// QueueState returns the payload of a queue:state event.
func (e Event) QueueState() (rpc.QueueState, bool) {
	p, ok := e.Payload.(rpc.QueueState)
	return p, ok && e.Topic == TopicQueueState
}

// PlayerState returns the payload of a player:state event.
func (e Event) PlayerState() (rpc.PlayerState, bool) {
	p, ok := e.Payload.(rpc.PlayerState)
	return p, ok && e.Topic == TopicPlayerState
}
