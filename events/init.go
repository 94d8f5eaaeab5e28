package events

import (
	"encoding/json"
	"fmt"

	"github.com/r3labs/sse/v2"

	"github.com/marcus-crane/invitation/shared"
)

var Server *sse.Server

// Init sets up the event server along with the shared wishes stream. Each
// playback session adds and removes its own stream.
func Init() {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(shared.STREAM_WISHES)
	Server = server
}

func PublishJSON(stream string, v any) error {
	if Server == nil {
		return fmt.Errorf("event server is not initialised")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	Server.Publish(stream, &sse.Event{Data: data})
	return nil
}
