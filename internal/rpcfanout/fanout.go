// Package rpcfanout implements the multi-endpoint call primitive (C1):
// a caller-supplied operation run against one or more RPC endpoint
// URLs under either a failover or a concurrent-race mode.
package rpcfanout

import (
	"context"
	"net/url"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"clp-rebalancer/internal/errs"
)

// ModeKind distinguishes the two fanout strategies.
type ModeKind int

const (
	// Failover iterates URLs in order, trying the next on error or
	// timeout.
	Failover ModeKind = iota
	// Concurrent launches the operation against every URL in
	// parallel and returns the first success.
	Concurrent
)

// Mode is the tagged-union endpoint-selection strategy: a Kind plus
// the URL list it operates over.
type Mode struct {
	Kind ModeKind
	URLs []string
}

// DefaultTimeout is used when a caller does not specify a timeout.
const DefaultTimeout = 20 * time.Second

var (
	warnPrefix = color.New(color.FgYellow).Sprint("[WARN]")
	infoPrefix = color.New(color.FgCyan).Sprint("[INFO]")
)

// Call runs op against the endpoints named by mode, returning the
// first successful result. timeoutMs of 0 uses DefaultTimeout.
func Call[T any](ctx context.Context, mode Mode, timeoutMs int, op func(ctx context.Context, endpointURL string) (T, error)) (T, error) {
	var zero T
	if len(mode.URLs) == 0 {
		return zero, &errs.AllEndpointsFailedError{}
	}

	timeout := DefaultTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	callID := uuid.NewString()[:8]

	switch mode.Kind {
	case Concurrent:
		return callConcurrent(ctx, mode.URLs, timeout, callID, op)
	default:
		return callFailover(ctx, mode.URLs, timeout, callID, op)
	}
}

func callFailover[T any](ctx context.Context, urls []string, timeout time.Duration, callID string, op func(context.Context, string) (T, error)) (T, error) {
	var zero T
	var failures []errs.EndpointFailure

	for _, endpointURL := range urls {
		domain := urlDomain(endpointURL)
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		result, err := op(callCtx, endpointURL)
		elapsed := time.Since(start)
		cancel()

		if err == nil {
			log.Debug().Str("call_id", callID).Str("domain", domain).Dur("elapsed", elapsed).Msg("rpc call succeeded")
			return result, nil
		}

		kind := errs.Classify(err)
		if callCtx.Err() != nil {
			kind = errs.KindTimeout
		}
		log.Warn().Str("call_id", callID).Str("domain", domain).Dur("elapsed", elapsed).Err(err).
			Msgf("%s rpc endpoint failed, trying next", warnPrefix)
		failures = append(failures, errs.EndpointFailure{Domain: domain, Kind: kind, Err: err})
	}

	return zero, &errs.AllEndpointsFailedError{LastErrors: failures}
}

func callConcurrent[T any](ctx context.Context, urls []string, timeout time.Duration, callID string, op func(context.Context, string) (T, error)) (T, error) {
	var zero T
	raceCtx, cancelRace := context.WithCancel(ctx)
	defer cancelRace()

	group, _ := errgroup.WithContext(ctx)
	results := make(chan T, 1)
	failures := make(chan errs.EndpointFailure, len(urls))

	for _, endpointURL := range urls {
		endpointURL := endpointURL
		group.Go(func() error {
			domain := urlDomain(endpointURL)
			callCtx, cancel := context.WithTimeout(raceCtx, timeout)
			defer cancel()

			start := time.Now()
			result, err := op(callCtx, endpointURL)
			elapsed := time.Since(start)

			if err != nil {
				kind := errs.Classify(err)
				if callCtx.Err() != nil {
					kind = errs.KindTimeout
				}
				select {
				case failures <- errs.EndpointFailure{Domain: domain, Kind: kind, Err: err}:
				default:
				}
				return nil
			}

			log.Debug().Str("call_id", callID).Str("domain", domain).Dur("elapsed", elapsed).
				Msgf("%s rpc race winner", infoPrefix)
			select {
			case results <- result:
				// First success: cancel the race so stragglers abort
				// their in-flight calls on a best-effort basis.
				cancelRace()
			default:
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case result := <-results:
		return result, nil
	case <-done:
		select {
		case result := <-results:
			return result, nil
		default:
		}
	}

	close(failures)
	var all []errs.EndpointFailure
	for f := range failures {
		all = append(all, f)
	}
	return zero, &errs.AllEndpointsFailedError{LastErrors: all}
}

func urlDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}
