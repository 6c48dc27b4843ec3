package artifact

import (
	"context"
	"io"
	"time"

	"github.com/MateoLopez004/Gobackup/iox"
	"github.com/MateoLopez004/Gobackup/lode"
	"github.com/MateoLopez004/Gobackup/types"
)

// Backend names.
const (
	BackendLink = "link"
	BackendFS   = "fs"
	BackendS3   = "s3"
)

// Delivery is the result of one background archive transfer.
type Delivery struct {
	SessionID string
	Backend   string
	// Location is the URL or storage URI of the archive.
	Location string
	// Bytes is the number of archive bytes written (0 for links).
	Bytes    int64
	Duration time.Duration
	// Err is non-nil when the transfer failed; it matches types.ErrDelivery.
	Err error
}

// Deliverer moves a finished archive to its destination.
type Deliverer interface {
	// Backend returns the backend name for logs and reports.
	Backend() string
	// Deliver transfers the archive described by info.
	Deliver(ctx context.Context, info types.ArtifactInfo) (Delivery, error)
}

// Linker builds archive URLs.
type Linker interface {
	DownloadURL(sessionID string) string
	Resolve(ref string) string
}

// LinkDeliverer reports the archive's download URL without fetching it.
type LinkDeliverer struct {
	links Linker
}

// NewLinkDeliverer creates a LinkDeliverer.
func NewLinkDeliverer(links Linker) *LinkDeliverer {
	return &LinkDeliverer{links: links}
}

// Backend implements Deliverer.
func (d *LinkDeliverer) Backend() string { return BackendLink }

// Deliver implements Deliverer.
func (d *LinkDeliverer) Deliver(_ context.Context, info types.ArtifactInfo) (Delivery, error) {
	loc := d.links.DownloadURL(info.SessionID)
	if info.DownloadURL != "" {
		loc = d.links.Resolve(info.DownloadURL)
	}
	return Delivery{Location: loc}, nil
}

// Downloader opens the archive stream of a session.
type Downloader interface {
	Download(ctx context.Context, sessionID string) (io.ReadCloser, int64, error)
}

// StoreDeliverer streams the archive into an ArtifactStore.
type StoreDeliverer struct {
	source  Downloader
	store   *lode.ArtifactStore
	backend string
}

// NewStoreDeliverer creates a StoreDeliverer. backend is reported by Backend
// (BackendFS or BackendS3).
func NewStoreDeliverer(source Downloader, store *lode.ArtifactStore, backend string) *StoreDeliverer {
	return &StoreDeliverer{source: source, store: store, backend: backend}
}

// Backend implements Deliverer.
func (d *StoreDeliverer) Backend() string { return d.backend }

// Deliver implements Deliverer. The stream is copied as is.
func (d *StoreDeliverer) Deliver(ctx context.Context, info types.ArtifactInfo) (Delivery, error) {
	rc, _, err := d.source.Download(ctx, info.SessionID)
	if err != nil {
		return Delivery{}, err
	}
	defer iox.DiscardClose(rc)

	cr := iox.NewCountingReader(rc)
	out := Delivery{Location: d.store.Location(info.SessionID)}
	err = d.store.Put(ctx, info.SessionID, cr)
	out.Bytes = cr.Count()
	return out, err
}
