package scheduler

import (
	"context"
	"errors"
)

// Announcer pushes a "new work available" hint for a job. Announcements are
// advisory: the job store stays authoritative.
type Announcer interface {
	Announce(ctx context.Context, jobID string) error
}

// NopAnnouncer drops every announcement
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(context.Context, string) error { return nil }

// MultiAnnouncer fans an announcement out to every announcer and joins their errors
type MultiAnnouncer []Announcer

func (m MultiAnnouncer) Announce(ctx context.Context, jobID string) error {
	var errList []error
	for _, a := range m {
		if err := a.Announce(ctx, jobID); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
