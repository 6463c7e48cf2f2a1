// Package codec decodes JSON encoded log events.
package codec

import (
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/atlassian/gokairos"
)

// DefaultVersion is the @version given to events which do not carry one.
const DefaultVersion = "1"

// ErrNotAnObject is returned when an event is not a JSON object.
var ErrNotAnObject = errors.New("event is not a JSON object")

var jsonConfig = jsoniter.Config{
	UseNumber: true,
}.Froze()

// Decoder turns JSON documents into events.  Object fields keep their order, numbers are
// decoded as json.Number, a string @timestamp is parsed as RFC3339 and a missing @timestamp
// is set to the time of decoding.
type Decoder struct {
	Now func() time.Time
}

// NewDecoder returns a Decoder which stamps events with the wall clock.
func NewDecoder() *Decoder {
	return &Decoder{
		Now: time.Now,
	}
}

// Decode decodes a single JSON object.
func (d *Decoder) Decode(data []byte) (*gokairos.Event, error) {
	iter := jsoniter.ParseBytes(jsonConfig, data)
	e, err := d.readEvent(iter)
	if err != nil {
		return nil, err
	}
	if err := checkTrailing(iter); err != nil {
		return nil, err
	}
	return e, nil
}

// DecodeBatch decodes either a single JSON object or an array of JSON objects.
func (d *Decoder) DecodeBatch(data []byte) ([]*gokairos.Event, error) {
	iter := jsoniter.ParseBytes(jsonConfig, data)
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		e, err := d.readEvent(iter)
		if err != nil {
			return nil, err
		}
		if err := checkTrailing(iter); err != nil {
			return nil, err
		}
		return []*gokairos.Event{e}, nil
	case jsoniter.ArrayValue:
		var events []*gokairos.Event
		var readErr error
		iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
			e, err := d.readEvent(iter)
			if err != nil {
				readErr = err
				return false
			}
			events = append(events, e)
			return true
		})
		if readErr != nil {
			return nil, readErr
		}
		if err := iterError(iter); err != nil {
			return nil, err
		}
		if err := checkTrailing(iter); err != nil {
			return nil, err
		}
		return events, nil
	default:
		if err := iterError(iter); err != nil {
			return nil, err
		}
		return nil, ErrNotAnObject
	}
}

func (d *Decoder) readEvent(iter *jsoniter.Iterator) (*gokairos.Event, error) {
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		if err := iterError(iter); err != nil {
			return nil, err
		}
		return nil, ErrNotAnObject
	}
	e := gokairos.NewEvent()
	iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
		e.Set(field, iter.Read())
		return iter.Error == nil
	})
	if err := iterError(iter); err != nil {
		return nil, err
	}
	d.normalize(e)
	return e, nil
}

func (d *Decoder) normalize(e *gokairos.Event) {
	ts, ok := e.Get(gokairos.FieldTimestamp)
	switch {
	case !ok || ts == nil:
		e.Set(gokairos.FieldTimestamp, d.Now().UTC())
	default:
		if s, isString := ts.(string); isString {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				e.Set(gokairos.FieldTimestamp, t.UTC())
			}
		}
	}
	if _, ok := e.Get(gokairos.FieldVersion); !ok {
		e.Set(gokairos.FieldVersion, DefaultVersion)
	}
}

func iterError(iter *jsoniter.Iterator) error {
	if iter.Error != nil && iter.Error != io.EOF {
		return fmt.Errorf("invalid JSON: %v", iter.Error)
	}
	return nil
}

// checkTrailing rejects anything but whitespace after the document.  Peeking past the end
// of the input leaves io.EOF in iter.Error.
func checkTrailing(iter *jsoniter.Iterator) error {
	iter.WhatIsNext()
	if iter.Error != io.EOF {
		return errors.New("invalid JSON: unexpected data after document")
	}
	return nil
}
