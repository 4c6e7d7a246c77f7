package forwarder

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Pub/Sub notification attributes set by Cloud Storage.
const (
	attrEventType       = "eventType"
	attrBucketID        = "bucketId"
	attrObjectID        = "objectId"
	eventObjectFinalize = "OBJECT_FINALIZE"
)

var (
	// ErrMissingObject means the event did not name both a bucket and a key.
	ErrMissingObject = errors.New("event does not reference a bucket and key")
	// ErrIgnoredEvent marks storage notifications other than object creation.
	ErrIgnoredEvent = errors.New("event is not an object creation")
)

// ObjectRef is the payload POSTed to the webhook.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type s3Record struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

type pushMessage struct {
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

// storageEvent is the union of the accepted inbound shapes.
type storageEvent struct {
	Records *[]s3Record  `json:"Records"`
	Message *pushMessage `json:"message"`
	Bucket  string       `json:"bucket"`
	Name    string       `json:"name"`
}

// DecodeEvent extracts the object reference from an S3 event notification, a Cloud Storage
// object resource, or a Pub/Sub push envelope wrapping either. Only the first S3 record is used.
func DecodeEvent(raw []byte) (ObjectRef, error) {
	var ev storageEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ObjectRef{}, fmt.Errorf("decode storage event: %w", err)
	}
	switch {
	case ev.Records != nil:
		if len(*ev.Records) == 0 {
			return ObjectRef{}, fmt.Errorf("s3 event has no records: %w", ErrMissingObject)
		}
		first := (*ev.Records)[0].S3
		return newRef(first.Bucket.Name, unescapeKey(first.Object.Key))
	case ev.Message != nil:
		return DecodePubSubMessage(ev.Message.Data, ev.Message.Attributes)
	default:
		return newRef(ev.Bucket, ev.Name)
	}
}

// DecodePubSubMessage reads a Cloud Storage notification delivered over Pub/Sub. Attributes
// take precedence over the JSON object resource in data.
func DecodePubSubMessage(data []byte, attrs map[string]string) (ObjectRef, error) {
	if eventType, ok := attrs[attrEventType]; ok && eventType != eventObjectFinalize {
		return ObjectRef{}, fmt.Errorf("%s: %w", eventType, ErrIgnoredEvent)
	}
	if attrs[attrBucketID] != "" && attrs[attrObjectID] != "" {
		return newRef(attrs[attrBucketID], attrs[attrObjectID])
	}
	if len(data) == 0 {
		return ObjectRef{}, ErrMissingObject
	}
	return DecodeEvent(data)
}

// unescapeKey undoes the form encoding S3 applies to keys in notifications. Keys that do not
// decode are returned unchanged.
func unescapeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}

func newRef(bucket, key string) (ObjectRef, error) {
	if strings.TrimSpace(bucket) == "" || key == "" {
		return ObjectRef{}, ErrMissingObject
	}
	return ObjectRef{Bucket: bucket, Key: key}, nil
}
