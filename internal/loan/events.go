package loan

// Event types carried in the eventType attribute of published notifications.
const (
	EventScrapeCompleted = "scrape.completed"
	EventObjectStored    = "object.stored"
)

// ScrapeCompleted is published after RunAndStore finishes.
type ScrapeCompleted struct {
	Source      string `json:"source"`
	URL         string `json:"url"`
	Records     int    `json:"records"`
	Stored      int    `json:"stored"`
	SnapshotURI string `json:"snapshot_uri,omitempty"`
	ScrapedAt   string `json:"scraped_at"`
}

// EventType implements the publisher's typed-event hook.
func (ScrapeCompleted) EventType() string { return EventScrapeCompleted }

// ObjectStored is published after the upload endpoint writes a file.
type ObjectStored struct {
	Key         string `json:"key"`
	URI         string `json:"uri"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
}

// EventType implements the publisher's typed-event hook.
func (ObjectStored) EventType() string { return EventObjectStored }
