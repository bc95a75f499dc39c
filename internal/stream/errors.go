package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscriberClosed is returned when sending to a closed subscriber
	ErrSubscriberClosed = errors.New("subscriber closed")

	// ErrSlowSubscriber is returned when a subscriber cannot accept a payload in time
	ErrSlowSubscriber = errors.New("subscriber too slow")
)

type errPanic struct {
	v interface{}
}

func (e errPanic) Error() string {
	return fmt.Sprintf("subscriber panicked: %v", e.v)
}
