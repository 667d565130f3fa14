/*
Copyright © 2022 the reshapr authors.
This file is part of reshapr.

reshapr is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

reshapr is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with reshapr.  If not, see <http://www.gnu.org/licenses/>.
*/

package cluster

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/reshapr"
)

// Info describes a scheduler.
type Info struct {
	Name  string
	Slots int
}

// Request identifies the client of a scheduler call.
type Request struct {
	Client string
}

// Slot identifies an execution slot held by a client.
type Slot struct {
	ID int64
}

// Scheduler hands out execution slots to the clients of a shared cluster.
// Its exported methods are called over net/rpc.
type Scheduler struct {
	name  string
	slots chan struct{}

	mu   sync.Mutex
	next int64
	held map[int64]bool
}

// NewScheduler returns a scheduler for the pool described by cfg.
func NewScheduler(cfg *Config) *Scheduler {
	return &Scheduler{
		name:  cfg.Name,
		slots: make(chan struct{}, cfg.Slots()),
		held:  make(map[int64]bool),
	}
}

// Info returns the name and size of the scheduler.
func (s *Scheduler) Info(_ Request, reply *Info) error {
	*reply = Info{Name: s.name, Slots: cap(s.slots)}
	return nil
}

// Acquire blocks until a slot is available.
func (s *Scheduler) Acquire(req Request, reply *Slot) error {
	s.slots <- struct{}{}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.held[s.next] = true
	reply.ID = s.next
	reshapr.Log.WithFields(logrus.Fields{"client": req.Client, "slot": s.next}).Debug("granted cluster slot")
	return nil
}

// Release returns a slot.
func (s *Scheduler) Release(slot Slot, reply *Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held[slot.ID] {
		return fmt.Errorf("cluster: slot %d is not held", slot.ID)
	}
	delete(s.held, slot.ID)
	<-s.slots
	*reply = slot
	return nil
}

// InUse returns the number of slots that are held.
func (s *Scheduler) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// Serve runs a scheduler for cfg on l until ctx is done.
func Serve(ctx context.Context, l net.Listener, cfg *Config) error {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Scheduler", NewScheduler(cfg)); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	reshapr.Log.WithFields(logrus.Fields{
		"cluster": cfg.Name,
		"addr":    l.Addr().String(),
		"slots":   cfg.Slots(),
	}).Info("cluster scheduler listening")
	done := make(chan struct{})
	go func() {
		srv.Accept(l)
		close(done)
	}()
	select {
	case <-ctx.Done():
		l.Close()
		<-done
		return nil
	case <-done:
		return fmt.Errorf("cluster: scheduler on %s stopped accepting connections", l.Addr())
	}
}

// RemotePool obtains slots from a scheduler.
type RemotePool struct {
	addr   string
	client Request
	c      *rpc.Client

	mu   sync.Mutex
	held []int64
}

// Acquire implements Pool.
func (p *RemotePool) Acquire(ctx context.Context) error {
	slot := new(Slot)
	call := p.c.Go("Scheduler.Acquire", p.client, slot, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			return fmt.Errorf("cluster: acquiring slot from %s: %w", p.addr, call.Error)
		}
		p.mu.Lock()
		p.held = append(p.held, slot.ID)
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		// Hand back the slot if the scheduler grants it later.
		go func() {
			<-call.Done
			if call.Error == nil {
				p.c.Call("Scheduler.Release", *slot, new(Slot))
			}
		}()
		return ctx.Err()
	}
}

// Release implements Pool.
func (p *RemotePool) Release() {
	p.mu.Lock()
	if len(p.held) == 0 {
		p.mu.Unlock()
		return
	}
	id := p.held[len(p.held)-1]
	p.held = p.held[:len(p.held)-1]
	p.mu.Unlock()
	if err := p.c.Call("Scheduler.Release", Slot{ID: id}, new(Slot)); err != nil {
		reshapr.Log.WithFields(logrus.Fields{"addr": p.addr, "slot": id}).Warn("failed to release cluster slot")
	}
}

// Close implements Pool.
func (p *RemotePool) Close() error { return p.c.Close() }
