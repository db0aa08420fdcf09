package discovery

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Candidate is a host that may run a Dune-HD player.
type Candidate struct {
	Address      string
	FriendlyName string
	Location     string
}

// Options controls a discovery run.
type Options struct {
	Passes       int
	PassInterval time.Duration
	Timeout      time.Duration
	// StaticAddresses are always returned, even when SSDP finds nothing.
	StaticAddresses []string
}

// probeLimit bounds concurrent description fetches.
const probeLimit = 8

// DiscoverCandidates searches for UPnP media renderers and keeps those whose
// description identifies them as Dune-HD players. Renderers whose description
// cannot be fetched are kept too; the caller's status probe has the final say.
func DiscoverCandidates(ctx context.Context, opts Options, logger *log.Logger) ([]Candidate, error) {
	if logger == nil {
		logger = log.Default()
	}

	responses, err := Search(ctx, MediaRendererTarget, opts.Passes, opts.PassInterval, opts.Timeout)
	if err != nil {
		logger.Printf("DISCOVERY: SSDP search failed: %v", err)
		return nil, err
	}
	return probeResponses(ctx, responses, opts.StaticAddresses, logger), nil
}

// probeResponses turns SSDP answers into candidates, one per host, followed
// by the static addresses not already found.
func probeResponses(ctx context.Context, responses []Response, static []string, logger *log.Logger) []Candidate {
	var (
		hosts     []string
		locations = make(map[string]string)
	)
	for _, resp := range responses {
		host := extractHost(resp.Location)
		if host == "" {
			continue
		}
		if _, ok := locations[host]; !ok {
			hosts = append(hosts, host)
			locations[host] = resp.Location
		}
	}
	logger.Printf("DISCOVERY: %d SSDP answers from %d hosts", len(responses), len(hosts))

	// Each probe gets its own deadline so a slow search does not starve them.
	probed := make([]*Candidate, len(hosts))
	probeCtx := context.WithoutCancel(ctx)
	var group errgroup.Group
	group.SetLimit(probeLimit)
	for i, host := range hosts {
		i, host := i, host
		group.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(probeCtx, 5*time.Second)
			defer cancel()

			candidate := &Candidate{Address: host, Location: locations[host]}
			desc, err := FetchDescription(fetchCtx, candidate.Location)
			if err != nil {
				logger.Printf("DISCOVERY: keeping %s without description: %v", host, err)
			} else if !desc.IsDuneHD() {
				return nil
			} else {
				candidate.FriendlyName = desc.FriendlyName
			}
			probed[i] = candidate
			return nil
		})
	}
	_ = group.Wait()

	candidates := make([]Candidate, 0, len(hosts)+len(static))
	seen := make(map[string]bool)
	for _, candidate := range probed {
		if candidate != nil {
			seen[candidate.Address] = true
			candidates = append(candidates, *candidate)
		}
	}
	for _, address := range static {
		address = strings.TrimSpace(address)
		if address == "" || seen[address] {
			continue
		}
		seen[address] = true
		candidates = append(candidates, Candidate{Address: address})
	}

	logger.Printf("DISCOVERY: %d candidates (%d static)", len(candidates), len(static))
	return candidates
}

// extractHost returns the host of location. The Dune-HD control API always
// listens on port 80, so the description port is dropped.
func extractHost(location string) string {
	if location == "" {
		return ""
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Hostname())
}
