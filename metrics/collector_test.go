package metrics

import (
	"sync"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("http://backup.local:8080", "fs")

	c.RecordUpload(true, 100)
	c.RecordUpload(true, 2048)
	c.RecordUpload(false, 999)
	c.IncTriggerAccepted()
	c.IncTriggerFailed()
	c.IncPollTick()
	c.IncPollTick()
	c.IncPollTick()
	c.IncTransportError()
	c.IncTimeout()
	c.IncMetadataFailure()
	c.IncDeliveryStarted()
	c.RecordDelivery(true, 4096)
	c.RecordDelivery(false, 10)
	c.IncReset()
	c.IncPublishFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"UploadsSucceeded", s.UploadsSucceeded, 2},
		{"UploadsFailed", s.UploadsFailed, 1},
		{"BytesUploaded", s.BytesUploaded, 2148},
		{"TriggersAccepted", s.TriggersAccepted, 1},
		{"TriggersFailed", s.TriggersFailed, 1},
		{"PollTicks", s.PollTicks, 3},
		{"TransportErrors", s.TransportErrors, 1},
		{"Timeouts", s.Timeouts, 1},
		{"MetadataFailures", s.MetadataFailures, 1},
		{"DeliveriesStarted", s.DeliveriesStarted, 1},
		{"DeliveriesSucceeded", s.DeliveriesSucceeded, 1},
		{"DeliveriesFailed", s.DeliveriesFailed, 1},
		{"BytesDelivered", s.BytesDelivered, 4106},
		{"Resets", s.Resets, 1},
		{"PublishFailures", s.PublishFailures, 1},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s = %d, want %d", ch.name, ch.got, ch.want)
		}
	}

	if s.Server != "http://backup.local:8080" || s.OutputBackend != "fs" {
		t.Errorf("dimensions = (%q, %q)", s.Server, s.OutputBackend)
	}
}

func TestCollector_VerdictsAndCompletions(t *testing.T) {
	c := NewCollector("", "link")
	c.RecordVerdict("noop")
	c.RecordVerdict("progress")
	c.RecordVerdict("progress")
	c.RecordVerdict("completed")
	c.RecordCompletion("fallback")

	s := c.Snapshot()
	if s.Verdicts["progress"] != 2 || s.Verdicts["noop"] != 1 || s.Verdicts["completed"] != 1 {
		t.Errorf("Verdicts = %v", s.Verdicts)
	}
	if s.Completions["fallback"] != 1 || s.Completions["primary"] != 0 {
		t.Errorf("Completions = %v", s.Completions)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("", "")
	c.RecordVerdict("progress")

	s1 := c.Snapshot()
	c.RecordVerdict("progress")
	c.IncPollTick()

	if s1.Verdicts["progress"] != 1 {
		t.Errorf("earlier snapshot mutated: %v", s1.Verdicts)
	}
	if s1.PollTicks != 0 {
		t.Errorf("earlier snapshot PollTicks = %d, want 0", s1.PollTicks)
	}

	s1.Verdicts["progress"] = 100
	if c.Snapshot().Verdicts["progress"] != 2 {
		t.Error("mutating a snapshot map leaked into the collector")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	c.RecordUpload(true, 1)
	c.IncTriggerAccepted()
	c.IncPollTick()
	c.RecordVerdict("progress")
	c.RecordCompletion("primary")
	c.RecordDelivery(true, 1)
	c.IncReset()

	s := c.Snapshot()
	if s.PollTicks != 0 || s.Verdicts != nil {
		t.Errorf("nil collector snapshot should be zero, got %+v", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("", "")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncPollTick()
			c.RecordVerdict("progress")
			_ = c.Snapshot()
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.PollTicks != 50 || s.Verdicts["progress"] != 50 {
		t.Errorf("PollTicks = %d, progress = %d, want 50/50", s.PollTicks, s.Verdicts["progress"])
	}
}
