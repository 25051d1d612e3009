package mqtt

import "strings"

const (
	stateSuffix     = "state"
	commandSuffix   = "command"
	connectedSuffix = "connected"
)

// StateTopic is where the server keeps the retained state of an item.
func StateTopic(prefix string, item string) string {
	return prefix + "/" + item + "/" + stateSuffix
}

// CommandTopic is where updates for an item are sent to the server.
func CommandTopic(prefix string, item string) string {
	return prefix + "/" + item + "/" + commandSuffix
}

func PresenceTopic(prefix string, clientID string) string {
	return prefix + "/" + clientID + "/" + connectedSuffix
}

func stateFilter(prefix string) string {
	return prefix + "/+/" + stateSuffix
}

func commandFilter(prefix string) string {
	return prefix + "/+/" + commandSuffix
}

// ItemFromTopic returns the item of a "<prefix>/<item>/<suffix>" topic.
func ItemFromTopic(prefix string, topic string, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	item, ok := strings.CutSuffix(rest, "/"+suffix)
	if !ok || item == "" || strings.Contains(item, "/") {
		return "", false
	}
	return item, true
}
