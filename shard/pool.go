// Package shard implements the RPC Client Pool (C7): per-shard, per-host
// channel management with round-robin dispatch, bad-host quarantine, and
// retrying Execute calls against the Worker service (C9).
//
// Grounded directly on the original's euler/client/rpc_manager.h/.cc:
// a channel list plus a bad-host list of (host_port, detected_at) pairs,
// a round-robin replica index, and a background cleanup loop that
// readmits a bad host once it has sat quarantined past a timeout. The
// mutex+condition-variable wakeup is reworked into a Go broadcast-channel
// pattern so GetChannel can also respect a context.Context deadline,
// which the original's cv_.wait could not.
package shard

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/euler-graph/euler/elog"
	"github.com/euler-graph/euler/eulerpb"
	"github.com/euler-graph/euler/status"
)

// Channel is one replica connection to one worker host (rpc_manager.cc's
// RpcChannel). A host may have several channels, tagged 0..numChannelsPerHost-1.
type Channel struct {
	HostPort string
	Tag      int
	Client   eulerpb.WorkerClient

	conn *grpc.ClientConn
}

// Dialer opens a gRPC connection to a worker host. Overridable for tests.
type Dialer func(hostPort string) (*grpc.ClientConn, error)

func defaultDialer(hostPort string) (*grpc.ClientConn, error) {
	return grpc.Dial(hostPort, //nolint:staticcheck // non-blocking dial, lazy connect matches rpc_manager.cc's semantics
		grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// ClientFactory wraps a dialed connection as a WorkerClient. Overridable so
// tests can substitute a scripted client per host (the retry-policy and
// round-robin properties need per-replica call counters and injected
// failures, which a real transport cannot provide deterministically).
type ClientFactory func(hostPort string, tag int, cc grpc.ClientConnInterface) eulerpb.WorkerClient

func defaultClientFactory(_ string, _ int, cc grpc.ClientConnInterface) eulerpb.WorkerClient {
	return eulerpb.NewWorkerClient(cc)
}

type badHost struct {
	hostPort   string
	detectedAt time.Time
}

// Pool is one shard's client pool: the set of live channels to that
// shard's replicas, plus the hosts currently quarantined out of rotation.
type Pool struct {
	shardIndex int

	dial                   Dialer
	newClient              ClientFactory
	numChannelsPerHost     int
	badHostCleanupInterval time.Duration
	badHostTimeout         time.Duration
	maxAttempts            uint64
	retryBaseInterval      time.Duration

	mu          sync.Mutex
	channels    []*Channel
	badHosts    []badHost
	nextReplica uint64
	notify      chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Pool at construction time.
type Option func(*Pool)

func WithDialer(d Dialer) Option                      { return func(p *Pool) { p.dial = d } }
func WithClientFactory(f ClientFactory) Option         { return func(p *Pool) { p.newClient = f } }
func WithNumChannelsPerHost(n int) Option              { return func(p *Pool) { p.numChannelsPerHost = n } }
func WithBadHostCleanupInterval(d time.Duration) Option { return func(p *Pool) { p.badHostCleanupInterval = d } }
func WithBadHostTimeout(d time.Duration) Option        { return func(p *Pool) { p.badHostTimeout = d } }

// WithMaxRetries sets num_retries: the total number of Execute attempts
// before the pool gives up and surfaces RpcError (spec §7's "up to
// num_retries", counted the way §8's retry properties count it).
func WithMaxRetries(n uint64) Option { return func(p *Pool) { p.maxAttempts = n } }

// WithRetryBaseInterval sets the first backoff delay between reissues.
func WithRetryBaseInterval(d time.Duration) Option { return func(p *Pool) { p.retryBaseInterval = d } }

// NewPool starts a pool for shardIndex with no channels; AddChannel (fed
// by a membership.Base shard callback) populates it as hosts join.
func NewPool(shardIndex int, opts ...Option) *Pool {
	p := &Pool{
		shardIndex:             shardIndex,
		dial:                   defaultDialer,
		newClient:              defaultClientFactory,
		numChannelsPerHost:     1,
		badHostCleanupInterval: time.Second,
		badHostTimeout:         10 * time.Second,
		maxAttempts:            3,
		retryBaseInterval:      100 * time.Millisecond,
		notify:                 make(chan struct{}),
		stop:                   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.cleanupLoop()
	return p
}

// broadcastLocked wakes every GetChannel waiter; callers must hold p.mu
// (the notify channel swap races with GetChannel's read otherwise).
func (p *Pool) broadcastLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}

// GetChannel returns the next channel in round-robin order, blocking
// until one is available or ctx is done (spec §9: operations must be
// cancellable, unlike the original's unconditional cv_.wait).
func (p *Pool) GetChannel(ctx context.Context) (*Channel, error) {
	for {
		p.mu.Lock()
		if n := len(p.channels); n > 0 {
			ch := p.channels[p.nextReplica%uint64(n)]
			p.nextReplica++
			p.mu.Unlock()
			return ch, nil
		}
		wake := p.notify
		p.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, status.Wrap(status.Unavailable, ctx.Err(), "shard %d: no channels available", p.shardIndex)
		}
	}
}

// MoveToBadHost quarantines hostPort: its channels are dropped from
// rotation and it is recorded with the time of detection, so the
// cleanup loop can readmit it once badHostTimeout has elapsed. Safe to
// call repeatedly for the same host (rpc_manager.cc: "may be called many
// times for the same host").
func (p *Pool) MoveToBadHost(hostPort string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doRemoveChannel(hostPort)
	for _, b := range p.badHosts {
		if b.hostPort == hostPort {
			return
		}
	}
	p.badHosts = append(p.badHosts, badHost{hostPort: hostPort, detectedAt: time.Now()})
}

// AddChannel dials numChannelsPerHost replica channels to hostPort and
// adds them to rotation. Called by the membership monitor's on-add-server
// callback. A host currently quarantined in badHosts is a no-op: the bad
// list is authoritative until the cleanup loop's timeout readmits it, so
// a membership add racing a quarantine (e.g. a flaky host bouncing
// up/down) must not resurrect channels the quarantine just dropped.
func (p *Pool) AddChannel(hostPort string) {
	p.mu.Lock()
	if p.isBadHost(hostPort) {
		p.mu.Unlock()
		return
	}
	p.doAddChannel(hostPort)
	p.broadcastLocked()
	p.mu.Unlock()
}

func (p *Pool) isBadHost(hostPort string) bool {
	for _, b := range p.badHosts {
		if b.hostPort == hostPort {
			return true
		}
	}
	return false
}

// RemoveChannel drops hostPort's channels from rotation and clears any
// quarantine record for it. Called by the membership monitor's
// on-remove-server callback.
func (p *Pool) RemoveChannel(hostPort string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doRemoveChannel(hostPort)
	kept := p.badHosts[:0]
	for _, b := range p.badHosts {
		if b.hostPort != hostPort {
			kept = append(kept, b)
		}
	}
	p.badHosts = kept
}

func (p *Pool) doAddChannel(hostPort string) {
	for tag := 0; tag < p.numChannelsPerHost; tag++ {
		conn, err := p.dial(hostPort)
		if err != nil {
			elog.Errorf("[%s] shard %d: dial %s failed: %v", elog.SModuleShardPool, p.shardIndex, hostPort, err)
			continue
		}
		p.channels = append(p.channels, &Channel{
			HostPort: hostPort,
			Tag:      tag,
			Client:   p.newClient(hostPort, tag, conn),
			conn:     conn,
		})
	}
}

func (p *Pool) doRemoveChannel(hostPort string) {
	kept := p.channels[:0]
	for _, ch := range p.channels {
		if ch.HostPort == hostPort {
			_ = ch.conn.Close()
			continue
		}
		kept = append(kept, ch)
	}
	p.channels = kept
}

func (p *Pool) cleanupLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.badHostCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.mu.Lock()
			if p.doCleanupBadHosts(now) {
				p.broadcastLocked()
			}
			p.mu.Unlock()
		}
	}
}

func (p *Pool) doCleanupBadHosts(now time.Time) bool {
	var stillBad []badHost
	readmitted := false
	for _, b := range p.badHosts {
		if now.Sub(b.detectedAt) < p.badHostTimeout {
			stillBad = append(stillBad, b)
			continue
		}
		p.doAddChannel(b.hostPort)
		readmitted = true
	}
	p.badHosts = stillBad
	return readmitted
}

// Close stops the cleanup loop and closes every live channel.
func (p *Pool) Close() {
	close(p.stop)
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.channels {
		_ = ch.conn.Close()
	}
	p.channels = nil
}

// Execute picks a channel, issues the Execute RPC, and on a transient
// failure quarantines that host and reissues against another channel,
// for at most num_retries attempts in total (spec §4.7/§7: the pool, not
// the caller, owns retry policy). A non-transient failure -- a decode
// error in particular, per §7 -- surfaces immediately with no reissue;
// exhausting every attempt surfaces RpcError.
func (p *Pool) Execute(ctx context.Context, req *eulerpb.ExecuteRequest) (*eulerpb.ExecuteReply, error) {
	attempts := p.maxAttempts
	if attempts == 0 {
		attempts = 1
	}
	var reply *eulerpb.ExecuteReply
	var lastHost string

	op := func() error {
		ch, err := p.GetChannel(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		lastHost = ch.HostPort
		reply, err = ch.Client.Execute(ctx, req)
		if err == nil {
			return nil
		}
		if code := status.Of(err); code != status.Unknown && !status.Transient(code) {
			return backoff.Permanent(err)
		}
		p.MoveToBadHost(ch.HostPort)
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.retryBaseInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, attempts-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if code := status.Of(err); code != status.Unknown && !status.Transient(code) {
			return nil, err // non-transient: keep the original kind (ProtoError, Unavailable, ...)
		}
		return nil, status.Wrap(status.RpcError, err, "shard %d: execute via %s failed after %d attempts", p.shardIndex, lastHost, attempts)
	}
	return reply, nil
}
