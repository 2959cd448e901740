package mqtt

// StateSink receives upstream entity updates decoded from the statestream.
type StateSink interface {
	SetState(entityID, state string)
	SetUnit(entityID, unit string)
	Remove(entityID string)
}

// Statestream attribute labels returned by HandleStatestream.
const (
	IngestState   = "state"
	IngestUnit    = "unit"
	IngestRemoved = "removed"
	IngestIgnored = "ignored"
)

// HandleStatestream applies one statestream message to sink and reports
// which attribute it carried. State payloads are raw text; attribute
// payloads are JSON encoded. An empty state payload clears the retained
// topic and removes the entity.
func HandleStatestream(sink StateSink, prefix, topic string, payload []byte) string {
	entityID, attr, ok := ParseStatestreamTopic(prefix, topic)
	if !ok {
		return IngestIgnored
	}

	switch attr {
	case attrState:
		if len(payload) == 0 {
			sink.Remove(entityID)
			return IngestRemoved
		}
		sink.SetState(entityID, string(payload))
		return IngestState
	case attrUnit:
		sink.SetUnit(entityID, decodeAttribute(payload))
		return IngestUnit
	default:
		return IngestIgnored
	}
}
