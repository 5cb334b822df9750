package timeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimelineFetchFailed is returned when every relay in the fetch
	// plan failed. Partial failure is not an error; it is reported in the
	// FetchReport instead.
	ErrTimelineFetchFailed = errors.New("timeline fetch failed")

	// ErrNoWriteRelays is returned by PublishStatus when the resolved
	// relay list contains no write-enabled relay.
	ErrNoWriteRelays = errors.New("no write-enabled relays")
)

// RelayOutcome is the per-relay result of a publish attempt.
type RelayOutcome struct {
	URL string
	Err error
}

// PublishError reports that no relay acknowledged a published event,
// listing what happened on each.
type PublishError struct {
	Outcomes []RelayOutcome
}

func (e *PublishError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "publish failed on all %d relays", len(e.Outcomes))
	for _, o := range e.Outcomes {
		fmt.Fprintf(&sb, "; %s: %v", o.URL, o.Err)
	}
	return sb.String()
}
