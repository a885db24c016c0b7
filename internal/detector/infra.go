package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SharedInfra finds devices used by multiple customers and IP addresses
// used by multiple accounts. Shared infrastructure is a strong link
// signal even when the linked parties have no transaction edge.
type SharedInfra struct{}

// Name returns the pattern type.
func (d *SharedInfra) Name() domain.PatternType { return domain.PatternSharedInfra }

// Detect emits one evidence item per shared device and per shared IP.
func (d *SharedInfra) Detect(ctx context.Context, store domain.GraphStore, cfg domain.DetectionConfig) *Result {
	res := &Result{Pattern: domain.PatternSharedInfra}
	if stop, timedOut := cancelled(ctx); stop {
		res.TimedOut = timedOut
		return res
	}
	since := time.Now().UTC().Add(-cfg.InfraWindow())

	devices, err := store.DevicesSharedAcrossCustomers(ctx, since)
	if err != nil {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		res.SoftErrors = append(res.SoftErrors, fmt.Sprintf("shared devices: %v", err))
	}
	for _, sd := range devices {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		if len(sd.CustomerIDs) < 2 {
			continue
		}
		res.Evidence = append(res.Evidence, domain.Evidence{
			Pattern:     domain.PatternSharedInfra,
			Confidence:  sharedConfidence(len(sd.CustomerIDs)),
			CustomerIDs: sd.CustomerIDs,
			DeviceIDs:   []string{sd.Device.ID},
			Factors: []string{
				fmt.Sprintf("Device %s used by %d customers", sd.Device.ID, len(sd.CustomerIDs)),
			},
			DetectedAt: time.Now().UTC(),
		})
	}

	ips, err := store.IPsSharedAcrossAccounts(ctx, since)
	if err != nil {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		res.SoftErrors = append(res.SoftErrors, fmt.Sprintf("shared ips: %v", err))
	}
	for _, si := range ips {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		if len(si.AccountIDs) < 2 {
			continue
		}
		res.Evidence = append(res.Evidence, domain.Evidence{
			Pattern:    domain.PatternSharedInfra,
			Confidence: sharedConfidence(len(si.AccountIDs)),
			AccountIDs: si.AccountIDs,
			IPs:        []string{si.IP.Address},
			Factors: []string{
				fmt.Sprintf("IP %s used by %d accounts", si.IP.Address, len(si.AccountIDs)),
			},
			DetectedAt: time.Now().UTC(),
		})
	}

	return res
}

// sharedConfidence grows with the number of sharers, capped at 0.9.
func sharedConfidence(n int) float64 {
	return min(0.9, 0.5+0.1*float64(n))
}
