package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gobackup"

func newDesc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
}

var (
	uploadsDesc          = newDesc("uploads_total", "File uploads by outcome.", "server", "output_backend", "outcome")
	uploadedBytesDesc    = newDesc("uploaded_bytes_total", "Bytes of successfully uploaded files.", "server", "output_backend")
	triggersDesc         = newDesc("triggers_total", "Backup triggers by outcome.", "server", "output_backend", "outcome")
	pollTicksDesc        = newDesc("poll_ticks_total", "Status polling attempts.", "server", "output_backend")
	transportErrorsDesc  = newDesc("transport_errors_total", "Failed status fetches.", "server", "output_backend")
	timeoutsDesc         = newDesc("timeouts_total", "Polling cycles that reached the attempt ceiling.", "server", "output_backend")
	verdictsDesc         = newDesc("verdicts_total", "Completion verdicts by kind.", "server", "output_backend", "verdict")
	completionsDesc      = newDesc("completions_total", "Honoured completions by resolution path.", "server", "output_backend", "path")
	metadataFailuresDesc = newDesc("metadata_failures_total", "Failed archive metadata fetches.", "server", "output_backend")
	deliveriesDesc       = newDesc("deliveries_total", "Archive deliveries by stage.", "server", "output_backend", "stage")
	deliveredBytesDesc   = newDesc("delivered_bytes_total", "Archive bytes written by the output backend.", "server", "output_backend")
	resetsDesc           = newDesc("resets_total", "Explicit session resets.", "server", "output_backend")
	publishFailuresDesc  = newDesc("publish_failures_total", "Completion events the adapter could not publish.", "server", "output_backend")
)

// snapshotCollector exposes a frozen Snapshot as constant counters.
type snapshotCollector struct {
	s Snapshot
}

func (c snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.s
	counter := func(desc *prometheus.Desc, v int64, extra ...string) {
		labels := append([]string{s.Server, s.OutputBackend}, extra...)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(uploadsDesc, s.UploadsSucceeded, "succeeded")
	counter(uploadsDesc, s.UploadsFailed, "failed")
	counter(uploadedBytesDesc, s.BytesUploaded)
	counter(triggersDesc, s.TriggersAccepted, "accepted")
	counter(triggersDesc, s.TriggersFailed, "failed")
	counter(pollTicksDesc, s.PollTicks)
	counter(transportErrorsDesc, s.TransportErrors)
	counter(timeoutsDesc, s.Timeouts)
	for verdict, n := range s.Verdicts {
		counter(verdictsDesc, n, verdict)
	}
	for path, n := range s.Completions {
		counter(completionsDesc, n, path)
	}
	counter(metadataFailuresDesc, s.MetadataFailures)
	counter(deliveriesDesc, s.DeliveriesStarted, "started")
	counter(deliveriesDesc, s.DeliveriesSucceeded, "succeeded")
	counter(deliveriesDesc, s.DeliveriesFailed, "failed")
	counter(deliveredBytesDesc, s.BytesDelivered)
	counter(resetsDesc, s.Resets)
	counter(publishFailuresDesc, s.PublishFailures)
}

// Registry returns a registry exposing the snapshot's counters.
func (s Snapshot) Registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(snapshotCollector{s: s}); err != nil {
		return nil, err
	}
	return reg, nil
}

// WriteTextfile writes the snapshot in the Prometheus text format for the
// node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, s Snapshot) error {
	reg, err := s.Registry()
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
