package mqtt

import (
	"fmt"
	"strings"

	"homecontrold/internal/model"
)

// DefaultTopicPrefix is the root of the topic hierarchy shared with the
// device firmware. Changing it orphans every deployed device.
const DefaultTopicPrefix = "homecontrol"

// TopicAddress is the parsed form of "prefix/userId/deviceId/messageType".
type TopicAddress struct {
	Prefix   string
	UserID   string
	DeviceID string
	Type     model.MessageType
}

// BuildTopic renders the canonical topic string. The format is wire
// protocol: devices subscribe to it verbatim.
func BuildTopic(prefix, userID, deviceID string, mt model.MessageType) string {
	return prefix + "/" + userID + "/" + deviceID + "/" + string(mt)
}

func (a TopicAddress) String() string {
	return BuildTopic(a.Prefix, a.UserID, a.DeviceID, a.Type)
}

// ParseTopic splits an inbound topic. Exactly four non-empty segments and
// a known message type are required.
func ParseTopic(topic string) (TopicAddress, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return TopicAddress{}, fmt.Errorf("topic %q: expected prefix/user/device/type", topic)
	}
	for _, p := range parts {
		if p == "" {
			return TopicAddress{}, fmt.Errorf("topic %q: empty segment", topic)
		}
	}
	mt := model.MessageType(parts[3])
	switch mt {
	case model.MessageCommand, model.MessageState, model.MessageEvent:
	default:
		return TopicAddress{}, fmt.Errorf("topic %q: unknown message type %q", topic, parts[3])
	}
	return TopicAddress{Prefix: parts[0], UserID: parts[1], DeviceID: parts[2], Type: mt}, nil
}

// StateWildcard and EventWildcard are the subscription patterns consumed
// by the ingest side.
func StateWildcard(prefix string) string { return prefix + "/+/+/" + string(model.MessageState) }
func EventWildcard(prefix string) string { return prefix + "/+/+/" + string(model.MessageEvent) }
