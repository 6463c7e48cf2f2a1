package fixtures

import (
	"time"

	"github.com/atlassian/gokairos"
)

// FixedTime is the timestamp of events built by MakeEvent.
var FixedTime = time.Unix(1600000000, 0).UTC()

// MakeEvent builds an event for tests from alternating field names and values, in order.
// The event carries @timestamp and @version like a decoded input event would.
func MakeEvent(kv ...interface{}) *gokairos.Event {
	if len(kv)%2 != 0 {
		panic("MakeEvent requires name/value pairs")
	}
	e := gokairos.NewEvent()
	e.Set(gokairos.FieldTimestamp, FixedTime)
	e.Set(gokairos.FieldVersion, "1")
	for i := 0; i < len(kv); i += 2 {
		e.Set(kv[i].(string), kv[i+1])
	}
	return e
}
