// Copyright 2019 Lanikai Labs. All rights reserved.

package pipeline

import (
	"sync"
	"time"

	"github.com/lanikai/scrshare/internal/discovery"
	"github.com/lanikai/scrshare/internal/render"
)

// version is reported verbatim in outgoing discovery messages.
const version = "0.1.0"

// Registry is the control surface a shell (CLI, desktop embedding, test)
// drives: it holds at most one Teacher Handle, one Student Handle, and one
// discovery loop at a time. State lives here rather than in process-wide
// globals so independent Registries can coexist in one process.
type Registry struct {
	mu sync.Mutex

	teacher *Handle
	student *Handle

	discoveryStop chan struct{}
	discoveryDone chan struct{}
	discoverySvc  *discovery.Service

	studentQueue *render.Queue
}

// NewRegistry creates an empty control surface.
func NewRegistry() *Registry {
	return &Registry{}
}

// StartTeacher starts a Teacher pipeline, if one is not already running.
func (r *Registry) StartTeacher(cfg StreamConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.teacher != nil && r.teacher.Running() {
		return newError(KindConfig, "teacher already running", nil)
	}

	h, err := StartTeacher(cfg)
	if err != nil {
		return err
	}
	r.teacher = h
	return nil
}

// StopTeacher stops the running Teacher pipeline, if any.
func (r *Registry) StopTeacher() {
	r.mu.Lock()
	h := r.teacher
	r.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// IsTeacherRunning reports whether a Teacher pipeline is currently active.
func (r *Registry) IsTeacherRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teacher != nil && r.teacher.Running()
}

// TeacherStats returns the running Teacher's stats channel, or nil if no
// Teacher is running.
func (r *Registry) TeacherStats() <-chan StatsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.teacher == nil {
		return nil
	}
	return r.teacher.Stats()
}

// StartStudent starts a Student pipeline, if one is not already running,
// and returns the render queue a caller should attach a render.Surface to.
func (r *Registry) StartStudent(cfg StreamConfig) (*render.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.student != nil && r.student.Running() {
		return nil, newError(KindConfig, "student already running", nil)
	}

	h, queue, err := StartStudent(cfg)
	if err != nil {
		return nil, err
	}
	r.student = h
	r.studentQueue = queue
	return queue, nil
}

// StopStudent stops the running Student pipeline, if any.
func (r *Registry) StopStudent() {
	r.mu.Lock()
	h := r.student
	r.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

// IsStudentRunning reports whether a Student pipeline is currently active.
func (r *Registry) IsStudentRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.student != nil && r.student.Running()
}

// StudentQueue returns the most recently started Student's render queue, or
// nil if no Student has been started. A shell that wants to attach a
// render.Surface after the fact reads it from here.
func (r *Registry) StudentQueue() *render.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.studentQueue
}

// StudentStats returns the running Student's stats channel, or nil if no
// Student is running.
func (r *Registry) StudentStats() <-chan StatsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.student == nil {
		return nil
	}
	return r.student.Stats()
}

// StartDiscovery starts the discovery service and its background
// announce/poll loop: an Announce every discovery.AnnounceInterval, and a
// continuous Poll for incoming Announce/Query/Response datagrams.
func (r *Registry) StartDiscovery(name string, isTeacher bool, streamPort uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.discoverySvc != nil {
		return newError(KindConfig, "discovery already running", nil)
	}

	role := discovery.RoleStudent
	if isTeacher {
		role = discovery.RoleTeacher
	}

	svc, err := discovery.New(name, role, streamPort, version)
	if err != nil {
		return newError(KindNetwork, "start discovery", err)
	}

	r.discoverySvc = svc
	r.discoveryStop = make(chan struct{})
	r.discoveryDone = make(chan struct{})

	go runDiscovery(svc, r.discoveryStop, r.discoveryDone)
	return nil
}

func runDiscovery(svc *discovery.Service, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(discovery.AnnounceInterval)
	defer ticker.Stop()

	_ = svc.Announce()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := svc.Announce(); err != nil {
				log.Warn("discovery: announce failed: %v", err)
			}
		default:
		}

		if _, ok := svc.Poll(100 * time.Millisecond); ok {
			// Peer table already updated by Poll; nothing further to do
			// here.
		}
	}
}

// StopDiscovery stops the discovery service, if running.
func (r *Registry) StopDiscovery() {
	r.mu.Lock()
	stop := r.discoveryStop
	done := r.discoveryDone
	svc := r.discoverySvc
	r.discoverySvc = nil
	r.discoveryStop = nil
	r.discoveryDone = nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	if svc != nil {
		_ = svc.Close()
	}
}

// Announce sends one immediate Announce datagram.
func (r *Registry) Announce() error {
	svc := r.discoveryService()
	if svc == nil {
		return newError(KindConfig, "discovery not running", nil)
	}
	return svc.Announce()
}

// Query broadcasts a Query, prompting any listening peer to respond.
func (r *Registry) Query() error {
	svc := r.discoveryService()
	if svc == nil {
		return newError(KindConfig, "discovery not running", nil)
	}
	return svc.Query()
}

// Peers returns the current discovery peer table.
func (r *Registry) Peers() []discovery.PeerInfo {
	svc := r.discoveryService()
	if svc == nil {
		return nil
	}
	return svc.Peers()
}

// Teachers returns currently discovered Teacher peers.
func (r *Registry) Teachers() []discovery.PeerInfo {
	svc := r.discoveryService()
	if svc == nil {
		return nil
	}
	return svc.Teachers()
}

// Students returns currently discovered Student peers.
func (r *Registry) Students() []discovery.PeerInfo {
	svc := r.discoveryService()
	if svc == nil {
		return nil
	}
	return svc.Students()
}

func (r *Registry) discoveryService() *discovery.Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discoverySvc
}
