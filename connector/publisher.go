package connector

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/timer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// Publisher names understood by the publisher registry
const (
	PublisherFlush    = "flush"
	PublisherNew      = "new"
	PublisherPeriodic = "periodic"

	IOModeBlock    = "block"
	IOModeNonBlock = "nonblock"
)

// Publisher moves serialized data from an out-port push connector to its
// consumer. A publisher may send synchronously (flush) or stage data in the
// connector buffer and push it from a task (new, periodic).
type Publisher interface {
	Init(props properties.Properties) error
	SetConsumer(c transport.InPortConsumer)
	SetBuffer(b buffer.Buffer[[]byte])
	SetListener(info dataport.ConnectorInfo, listeners *listener.ConnectorListeners)
	Write(data []byte, timeout time.Duration) dataport.Status
	IsActive() bool
	Activate()
	Deactivate()
	Close() error
}

// PublisherDeps are the runtime services publishers run on
type PublisherDeps struct {
	Pool   *ants.Pool
	Timer  *timer.Timer
	Logger *slog.Logger
}

// PublisherFactory builds a publisher
type PublisherFactory func(deps PublisherDeps) Publisher

// Publishers maps publisher names to factories
type Publishers struct {
	deps PublisherDeps

	mu        sync.RWMutex
	factories map[string]PublisherFactory
}

// NewPublishers returns an empty publisher registry
func NewPublishers(deps PublisherDeps) *Publishers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Publishers{deps: deps, factories: make(map[string]PublisherFactory)}
}

// Add registers a publisher factory
func (p *Publishers) Add(name string, f PublisherFactory) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.factories[name]; ok {
		return errors.WrapInvalid(errors.ErrDuplicateName, "Publishers", "Add", "register "+name)
	}
	p.factories[name] = f
	return nil
}

// Create builds the named publisher
func (p *Publishers) Create(name string) (Publisher, error) {
	p.mu.RLock()
	f, ok := p.factories[name]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownPublisher, "Publishers", "Create", "lookup "+name)
	}
	return f(p.deps), nil
}

// Has reports whether name is registered
func (p *Publishers) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.factories[name]
	return ok
}

// Names returns the registered names, sorted
func (p *Publishers) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.factories))
	for name := range p.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterPublishers adds flush (alias block), new (alias nonblock) and periodic
func RegisterPublishers(p *Publishers) error {
	flush := func(d PublisherDeps) Publisher { return NewFlushPublisher(d.Logger) }
	async := func(d PublisherDeps) Publisher { return NewAsyncPublisher(d.Pool, d.Logger) }
	periodic := func(d PublisherDeps) Publisher { return NewPeriodicPublisher(d.Timer, d.Pool, d.Logger) }
	for name, f := range map[string]PublisherFactory{
		PublisherFlush:    flush,
		IOModeBlock:       flush,
		PublisherNew:      async,
		IOModeNonBlock:    async,
		PublisherPeriodic: periodic,
	} {
		if err := p.Add(name, f); err != nil {
			return err
		}
	}
	return nil
}

// publisherName picks the publisher for a connection: dataport.io_mode wins
// over dataport.subscription_type, which defaults to flush.
func publisherName(props properties.Properties) string {
	if mode := properties.Normalize(props.Get(dataport.KeyIOMode)); mode != "" {
		return mode
	}
	st := properties.Normalize(props.Get(dataport.KeySubscriptionType, PublisherFlush))
	switch st {
	case PublisherFlush:
		props.Set(dataport.KeyIOMode, IOModeBlock)
	case PublisherNew:
		props.Set(dataport.KeyIOMode, IOModeNonBlock)
	}
	return st
}

// sender holds what every publisher needs to push one item
type sender struct {
	transport.Notifier
	logger *slog.Logger

	mu       sync.Mutex
	consumer transport.InPortConsumer
	buf      buffer.Buffer[[]byte]
	wired    bool
	active   bool
}

func (s *sender) SetConsumer(c transport.InPortConsumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumer = c
}

func (s *sender) SetBuffer(b buffer.Buffer[[]byte]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = b
}

func (s *sender) SetListener(info dataport.ConnectorInfo, listeners *listener.ConnectorListeners) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notifier.SetListener(info, listeners)
	s.wired = listeners != nil
}

func (s *sender) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *sender) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
}

func (s *sender) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func (s *sender) parts() (transport.InPortConsumer, buffer.Buffer[[]byte], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumer, s.buf, s.wired
}

// send pushes one item, firing ON_SEND before and ON_RECEIVED after a
// successful put. A panicking consumer is a lost connection.
func (s *sender) send(c transport.InPortConsumer, data []byte) (st dataport.Status) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Consumer put panicked", "panic", r)
			st = dataport.ConnectionLost
		}
	}()
	data = s.Data(listener.OnSend, data)
	st = c.Put(data)
	if st == dataport.PortOK {
		s.Data(listener.OnReceived, data)
		return st
	}
	return s.failed(st, data)
}

// failed fires the receiver-side listener matching a failed put
func (s *sender) failed(st dataport.Status, data []byte) dataport.Status {
	switch st {
	case dataport.PortError, dataport.ConnectionLost, dataport.UnknownError:
		s.Data(listener.OnReceiverError, data)
		return st
	case dataport.SendFull:
		s.Data(listener.OnReceiverFull, data)
		return st
	case dataport.SendTimeout:
		s.Data(listener.OnReceiverTimeout, data)
		return st
	default:
		s.Data(listener.OnReceiverError, data)
		return dataport.PortError
	}
}

// bufferResult converts the status of a staged write
func (s *sender) bufferResult(st buffer.Status, data []byte) dataport.Status {
	switch st {
	case buffer.StatusOK:
		return dataport.PortOK
	case buffer.StatusError:
		return dataport.BufferError
	case buffer.StatusFull:
		s.Data(listener.OnBufferFull, data)
		return dataport.BufferFull
	case buffer.StatusTimeout:
		s.Data(listener.OnBufferWriteTimeout, data)
		return dataport.BufferTimeout
	case buffer.StatusPreconditionNotMet:
		return dataport.PreconditionNotMet
	default:
		return dataport.PortError
	}
}

// FlushPublisher sends every write synchronously from the writer's goroutine
type FlushPublisher struct {
	sender
	retcode dataport.Status
}

// NewFlushPublisher creates a synchronous publisher
func NewFlushPublisher(logger *slog.Logger) *FlushPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushPublisher{sender: sender{logger: logger.With("component", "publisher-flush")}}
}

// Init implements Publisher; flush has no options
func (p *FlushPublisher) Init(properties.Properties) error { return nil }

// Write puts data to the consumer. Once the connection is lost every later
// write reports CONNECTION_LOST.
func (p *FlushPublisher) Write(data []byte, _ time.Duration) dataport.Status {
	c, _, wired := p.parts()
	if c == nil || !wired {
		return dataport.PreconditionNotMet
	}
	p.mu.Lock()
	lost := p.retcode == dataport.ConnectionLost
	p.mu.Unlock()
	if lost {
		return dataport.ConnectionLost
	}

	st := p.send(c, data)
	p.mu.Lock()
	p.retcode = st
	p.mu.Unlock()
	return st
}

// Close implements Publisher
func (p *FlushPublisher) Close() error {
	p.Deactivate()
	return nil
}

// PushPolicy selects what an asynchronous publisher sends per cycle
type PushPolicy int

// Push policies
const (
	// PushNew sends only the newest item and drops the rest
	PushNew PushPolicy = iota
	// PushAll sends every staged item
	PushAll
	// PushFifo sends the oldest staged item
	PushFifo
	// PushSkip sends every (skip_count+1)th item
	PushSkip
)

func (p PushPolicy) String() string {
	switch p {
	case PushAll:
		return "all"
	case PushFifo:
		return "fifo"
	case PushSkip:
		return "skip"
	default:
		return "new"
	}
}

// ParsePushPolicy parses publisher.push_policy; unknown values select new
func ParsePushPolicy(s string) PushPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return PushAll
	case "fifo":
		return PushFifo
	case "skip":
		return PushSkip
	default:
		return PushNew
	}
}

// pusher drains the connector buffer according to a push policy
type pusher struct {
	sender
	policy   PushPolicy
	skipn    int
	leftskip int
	retcode  dataport.Status
}

func (p *pusher) configure(props properties.Properties) {
	p.policy = ParsePushPolicy(props.Get("publisher.push_policy", "new"))
	p.skipn = props.Int("publisher.skip_count", 0)
	if p.skipn < 0 {
		p.skipn = 0
	}
	p.leftskip = 0
}

// stage stores data in the buffer on behalf of a writer. A previous push
// that lost the connection or found the peer full is reported instead.
func (p *pusher) stage(data []byte, timeout time.Duration) (dataport.Status, bool) {
	c, buf, wired := p.parts()
	if c == nil || buf == nil || !wired {
		return dataport.PreconditionNotMet, false
	}

	p.mu.Lock()
	last := p.retcode
	p.mu.Unlock()

	switch last {
	case dataport.ConnectionLost:
		return last, false
	case dataport.SendFull:
		buf.Write(data, timeout)
		return dataport.BufferFull, true
	}

	data = p.Data(listener.OnBufferWrite, data)
	return p.bufferResult(buf.Write(data, timeout), data), true
}

// push runs one cycle of the configured policy and records its outcome
func (p *pusher) push() {
	c, buf, _ := p.parts()
	if c == nil || buf == nil {
		return
	}
	st := p.cycle(c, buf)
	p.mu.Lock()
	p.retcode = st
	p.mu.Unlock()
}

func (p *pusher) cycle(c transport.InPortConsumer, buf buffer.Buffer[[]byte]) (st dataport.Status) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Push cycle panicked", "panic", r)
			st = dataport.ConnectionLost
		}
	}()
	switch p.policy {
	case PushAll:
		return p.pushAll(c, buf)
	case PushFifo:
		return p.pushFifo(c, buf)
	case PushSkip:
		return p.pushSkip(c, buf)
	default:
		return p.pushNew(c, buf)
	}
}

func (p *pusher) pushOne(c transport.InPortConsumer, buf buffer.Buffer[[]byte]) dataport.Status {
	data, bst := buf.Get()
	if bst != buffer.StatusOK {
		return dataport.PortOK
	}
	data = p.Data(listener.OnBufferRead, data)
	if st := p.send(c, data); st != dataport.PortOK {
		return st
	}
	buf.AdvanceRptr(1)
	return dataport.PortOK
}

func (p *pusher) pushAll(c transport.InPortConsumer, buf buffer.Buffer[[]byte]) dataport.Status {
	for buf.Readable() > 0 {
		if st := p.pushOne(c, buf); st != dataport.PortOK {
			return st
		}
	}
	return dataport.PortOK
}

func (p *pusher) pushFifo(c transport.InPortConsumer, buf buffer.Buffer[[]byte]) dataport.Status {
	if buf.Readable() == 0 {
		return dataport.PortOK
	}
	return p.pushOne(c, buf)
}

func (p *pusher) pushNew(c transport.InPortConsumer, buf buffer.Buffer[[]byte]) dataport.Status {
	n := buf.Readable()
	if n == 0 {
		return dataport.PortOK
	}
	buf.AdvanceRptr(n - 1)
	return p.pushOne(c, buf)
}

// pushSkip sends one item out of every skip_count+1, carrying the remainder
// over to the next cycle.
func (p *pusher) pushSkip(c transport.InPortConsumer, buf buffer.Buffer[[]byte]) dataport.Status {
	st := dataport.PortOK
	preskip := buf.Readable() + p.leftskip
	loops := preskip / (p.skipn + 1)
	postskip := p.skipn - p.leftskip

	for i := 0; i < loops; i++ {
		buf.AdvanceRptr(postskip)
		data, bst := buf.Get()
		if bst != buffer.StatusOK {
			break
		}
		data = p.Data(listener.OnBufferRead, data)
		if st = p.send(c, data); st != dataport.PortOK {
			buf.AdvanceRptr(-postskip)
			return st
		}
		postskip = p.skipn + 1
	}
	buf.AdvanceRptr(buf.Readable())

	p.mu.Lock()
	last := p.retcode
	p.mu.Unlock()
	if loops > 0 && last != dataport.PortOK {
		p.leftskip = 0
	} else {
		p.leftskip = preskip % (p.skipn + 1)
	}
	return st
}

// AsyncPublisher stages writes in the connector buffer and pushes them from
// a task on the goroutine pool. Writers never wait for the consumer.
type AsyncPublisher struct {
	pusher
	pool *ants.Pool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started bool
}

// NewAsyncPublisher creates the "new" publisher. A nil pool runs the push
// task on its own goroutine.
func NewAsyncPublisher(pool *ants.Pool, logger *slog.Logger) *AsyncPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncPublisher{
		pusher:  pusher{sender: sender{logger: logger.With("component", "publisher-new")}},
		pool:    pool,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Init reads publisher.push_policy and publisher.skip_count and starts the
// push task.
func (p *AsyncPublisher) Init(props properties.Properties) error {
	p.configure(props)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if p.pool != nil {
		if err := p.pool.Submit(p.run); err != nil {
			return errors.WrapTransient(err, "AsyncPublisher", "Init", "submit push task")
		}
	} else {
		go p.run()
	}
	p.started = true
	return nil
}

func (p *AsyncPublisher) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
			if p.IsActive() {
				p.push()
			}
		}
	}
}

// Write stages data and wakes the push task
func (p *AsyncPublisher) Write(data []byte, timeout time.Duration) dataport.Status {
	st, staged := p.stage(data, timeout)
	if staged {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return st
}

// Close stops the push task and waits for it to return
func (p *AsyncPublisher) Close() error {
	p.Deactivate()
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		started := p.started
		p.mu.Unlock()
		if started {
			<-p.stopped
		}
	})
	return nil
}

// PeriodicPublisher stages writes in the connector buffer and pushes them
// at publisher.push_rate Hz from the runtime timer.
type PeriodicPublisher struct {
	pusher
	timer *timer.Timer
	pool  *ants.Pool

	task    *timer.PeriodicFunction
	running sync.Mutex
}

// NewPeriodicPublisher creates the "periodic" publisher. When pool is set the
// push runs there so a slow consumer does not hold up the timer.
func NewPeriodicPublisher(t *timer.Timer, pool *ants.Pool, logger *slog.Logger) *PeriodicPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicPublisher{
		pusher: pusher{sender: sender{logger: logger.With("component", "publisher-periodic")}},
		timer:  t,
		pool:   pool,
	}
}

// DefaultPushRate is used when publisher.push_rate is missing or not positive
const DefaultPushRate = 100.0

// Init reads the push options and registers the periodic task
func (p *PeriodicPublisher) Init(props properties.Properties) error {
	if p.timer == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "PeriodicPublisher", "Init", "timer lookup")
	}
	p.configure(props)
	rate := props.Float("publisher.push_rate", DefaultPushRate)
	if rate <= 0 {
		p.logger.Warn("Invalid push rate, using default", "push_rate", rate, "default", DefaultPushRate)
		rate = DefaultPushRate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task != nil {
		p.task.Stop()
	}
	p.task = p.timer.Periodic(p.tick, time.Duration(float64(time.Second)/rate))
	return nil
}

func (p *PeriodicPublisher) tick() {
	if !p.IsActive() || !p.running.TryLock() {
		return
	}
	job := func() {
		defer p.running.Unlock()
		p.push()
	}
	if p.pool == nil {
		job()
		return
	}
	if err := p.pool.Submit(job); err != nil {
		p.running.Unlock()
		p.logger.Debug("Push cycle skipped", "error", err)
	}
}

// Write stages data for the next cycle
func (p *PeriodicPublisher) Write(data []byte, timeout time.Duration) dataport.Status {
	st, _ := p.stage(data, timeout)
	return st
}

// Close removes the periodic task
func (p *PeriodicPublisher) Close() error {
	p.Deactivate()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task != nil {
		p.task.Stop()
		p.task = nil
	}
	return nil
}
