// Package metrics provides per-process counters for backup orchestration.
//
// The Collector accumulates counters across upload batches and trigger
// cycles. It is a leaf package with no internal dependencies; verdicts and
// completion paths are recorded by name.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Uploads
	UploadsSucceeded int64 `json:"uploads_succeeded"`
	UploadsFailed    int64 `json:"uploads_failed"`
	BytesUploaded    int64 `json:"bytes_uploaded"`

	// Trigger / polling
	TriggersAccepted int64            `json:"triggers_accepted"`
	TriggersFailed   int64            `json:"triggers_failed"`
	PollTicks        int64            `json:"poll_ticks"`
	TransportErrors  int64            `json:"transport_errors"`
	Timeouts         int64            `json:"timeouts"`
	Verdicts         map[string]int64 `json:"verdicts,omitempty"`
	Completions      map[string]int64 `json:"completions,omitempty"`

	// Retrieval
	MetadataFailures    int64 `json:"metadata_failures"`
	DeliveriesStarted   int64 `json:"deliveries_started"`
	DeliveriesSucceeded int64 `json:"deliveries_succeeded"`
	DeliveriesFailed    int64 `json:"deliveries_failed"`
	BytesDelivered      int64 `json:"bytes_delivered"`

	// Lifecycle
	Resets          int64 `json:"resets"`
	PublishFailures int64 `json:"publish_failures"`

	// Dimensions (informational, set at construction)
	Server        string `json:"server"`
	OutputBackend string `json:"output_backend"`
}

// Collector accumulates counters.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	uploadsSucceeded int64
	uploadsFailed    int64
	bytesUploaded    int64

	triggersAccepted int64
	triggersFailed   int64
	pollTicks        int64
	transportErrors  int64
	timeouts         int64
	verdicts         map[string]int64
	completions      map[string]int64

	metadataFailures    int64
	deliveriesStarted   int64
	deliveriesSucceeded int64
	deliveriesFailed    int64
	bytesDelivered      int64

	resets          int64
	publishFailures int64

	server        string
	outputBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(server, outputBackend string) *Collector {
	return &Collector{
		verdicts:      make(map[string]int64),
		completions:   make(map[string]int64),
		server:        server,
		outputBackend: outputBackend,
	}
}

func (c *Collector) add(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// --- Uploads ---

// RecordUpload records one upload attempt. size counts only on success.
func (c *Collector) RecordUpload(ok bool, size int64) {
	c.add(func() {
		if !ok {
			c.uploadsFailed++
			return
		}
		c.uploadsSucceeded++
		c.bytesUploaded += size
	})
}

// --- Trigger / polling ---

// IncTriggerAccepted records a job accepted by the service.
func (c *Collector) IncTriggerAccepted() { c.add(func() { c.triggersAccepted++ }) }

// IncTriggerFailed records a rejected or unreachable trigger.
func (c *Collector) IncTriggerFailed() { c.add(func() { c.triggersFailed++ }) }

// IncPollTick records one polling attempt, whatever its result.
func (c *Collector) IncPollTick() { c.add(func() { c.pollTicks++ }) }

// IncTransportError records a failed status fetch.
func (c *Collector) IncTransportError() { c.add(func() { c.transportErrors++ }) }

// IncTimeout records a polling cycle that reached its attempt ceiling.
func (c *Collector) IncTimeout() { c.add(func() { c.timeouts++ }) }

// RecordVerdict records one resolver verdict by name.
func (c *Collector) RecordVerdict(verdict string) {
	c.add(func() { c.verdicts[verdict]++ })
}

// RecordCompletion records a honoured completion by resolution path.
func (c *Collector) RecordCompletion(path string) {
	c.add(func() { c.completions[path]++ })
}

// --- Retrieval ---

// IncMetadataFailure records a failed artifact metadata fetch.
func (c *Collector) IncMetadataFailure() { c.add(func() { c.metadataFailures++ }) }

// IncDeliveryStarted records a triggered artifact download.
func (c *Collector) IncDeliveryStarted() { c.add(func() { c.deliveriesStarted++ }) }

// RecordDelivery records the end of a background delivery.
func (c *Collector) RecordDelivery(ok bool, bytes int64) {
	c.add(func() {
		c.bytesDelivered += bytes
		if ok {
			c.deliveriesSucceeded++
		} else {
			c.deliveriesFailed++
		}
	})
}

// --- Lifecycle ---

// IncReset records an explicit session reset.
func (c *Collector) IncReset() { c.add(func() { c.resets++ }) }

// IncPublishFailure records a completion event that could not be published.
func (c *Collector) IncPublishFailure() { c.add(func() { c.publishFailures++ }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned maps are copies; the Collector can continue to be mutated.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		UploadsSucceeded:    c.uploadsSucceeded,
		UploadsFailed:       c.uploadsFailed,
		BytesUploaded:       c.bytesUploaded,
		TriggersAccepted:    c.triggersAccepted,
		TriggersFailed:      c.triggersFailed,
		PollTicks:           c.pollTicks,
		TransportErrors:     c.transportErrors,
		Timeouts:            c.timeouts,
		Verdicts:            maps.Clone(c.verdicts),
		Completions:         maps.Clone(c.completions),
		MetadataFailures:    c.metadataFailures,
		DeliveriesStarted:   c.deliveriesStarted,
		DeliveriesSucceeded: c.deliveriesSucceeded,
		DeliveriesFailed:    c.deliveriesFailed,
		BytesDelivered:      c.bytesDelivered,
		Resets:              c.resets,
		PublishFailures:     c.publishFailures,
		Server:              c.server,
		OutputBackend:       c.outputBackend,
	}
}
