package session

import "time"

type channel int

const (
	channelControl channel = iota
	channelVideo
)

func (c channel) String() string {
	if c == channelControl {
		return "control"
	}
	return "video"
}

// Every event the loop consumes. Socket events carry the connection
// generation they belong to; the loop drops those from older generations.
type event interface{ isEvent() }

type openedEvent struct {
	ch   channel
	gen  uint64
	conn Conn
}

type closedEvent struct {
	ch  channel
	gen uint64
	err error
}

type textEvent struct {
	gen  uint64
	data []byte
}

type frameEvent struct {
	gen  uint64
	data []byte
	at   time.Time
}

type reconnectEvent struct{}

type actionEvent struct {
	fn func()
}

func (openedEvent) isEvent()    {}
func (closedEvent) isEvent()    {}
func (textEvent) isEvent()      {}
func (frameEvent) isEvent()     {}
func (reconnectEvent) isEvent() {}
func (actionEvent) isEvent()    {}
