package catalog

import (
	"errors"

	"github.com/watch2earn/cinema-server/pkg/protocol"
)

var ErrEntryNotFound = errors.New("catalog entry not found")

type Entry struct {
	Id          string `mapstructure:"id" validate:"required,max=64"`
	Title       string `mapstructure:"title" validate:"required"`
	Description string `mapstructure:"description"`
	VideoURL    string `mapstructure:"video_url" validate:"required"`
	// Empty price means the room is free to enter.
	TicketPrice  string                 `mapstructure:"ticket_price"`
	SceneOptions []protocol.SceneOption `mapstructure:"scene_options"`
}

func (e Entry) RequiresTicket() bool {
	return e.TicketPrice != "" && e.TicketPrice != "0"
}

// DefaultSceneOptions are offered when an entry does not define its own.
var DefaultSceneOptions = []protocol.SceneOption{
	{ID: 1, Text: "The Killer Escaped"},
	{ID: 2, Text: "The Killer Was Caught"},
}

func DefaultEntries() []Entry {
	return []Entry{
		{
			Id:          "1",
			Title:       "Action Movie Night",
			Description: "Join us for an exciting action movie experience!",
			VideoURL:    "/videos/12427369_3840_2160_24fps.mp4",
		},
		{
			Id:          "2",
			Title:       "4K Ultra HD Showcase",
			Description: "Experience crystal clear 4K resolution",
			VideoURL:    "/videos/12460736_3840_2160_60fps.mp4",
			TicketPrice: "0.01",
		},
		{
			Id:          "3",
			Title:       "Cinematic Experience",
			Description: "High-quality cinematic content",
			VideoURL:    "/videos/14183053_3840_2160_25fps.mp4",
		},
	}
}
