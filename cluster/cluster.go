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

// Package cluster provides the execution slots that bound the work of an
// extraction, either from a local worker pool described by a cluster
// configuration file or from a shared scheduler reached at host:port.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/reshapr"
	"sigs.k8s.io/yaml"
)

// Config describes a local worker pool.
type Config struct {
	Name             string `json:"name"`
	Processes        bool   `json:"processes"`
	NumberOfWorkers  int    `json:"number of workers"`
	ThreadsPerWorker int    `json:"threads per worker"`
	MemoryLimit      string `json:"memory limit,omitempty"`
}

// Slots returns the number of tasks that the pool runs at once.
func (c *Config) Slots() int { return c.NumberOfWorkers * c.ThreadsPerWorker }

// ParseConfig decodes a YAML cluster configuration. file is used in error
// messages.
func ParseConfig(b []byte, file string) (*Config, error) {
	c := new(Config)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, &reshapr.ConfigError{Err: reshapr.ErrInvalidConfig, File: file, Msg: fmt.Sprintf("parsing cluster config: %v", err)}
	}
	switch {
	case c.Name == "":
		return nil, &reshapr.ConfigError{Err: reshapr.ErrInvalidConfig, File: file, Field: "name", Msg: "cluster config is missing a required value"}
	case c.NumberOfWorkers < 1:
		return nil, &reshapr.ConfigError{Err: reshapr.ErrInvalidConfig, File: file, Field: "number of workers", Msg: "must be at least 1"}
	case c.ThreadsPerWorker < 1:
		return nil, &reshapr.ConfigError{Err: reshapr.ErrInvalidConfig, File: file, Field: "threads per worker", Msg: "must be at least 1"}
	}
	return c, nil
}

// Pool hands out execution slots.
type Pool interface {
	// Acquire blocks until a slot is available or ctx is done.
	Acquire(ctx context.Context) error

	// Release returns a slot obtained with Acquire.
	Release()

	// Close releases the resources of the pool.
	Close() error
}

// DialTimeout bounds the time taken to connect to a scheduler.
var DialTimeout = 10 * time.Second

const (
	msgUnrecognized = "unrecognized cluster config; expected YAML file path or host_ip:port"
	msgRefused      = "requested cluster is not running or refused your connection"
)

// Connect returns the pool for target, which is a cluster configuration
// file or the host:port address of a running scheduler. Configuration
// files are looked for with r.
func Connect(ctx context.Context, target string, r reshapr.Resolver) (Pool, error) {
	log := reshapr.Log.WithField("cluster_config_yaml", target)
	b, file, err := r.ReadFile(target)
	if err == nil {
		log = reshapr.Log.WithField("cluster_config_yaml", file)
		cfg, err := ParseConfig(b, file)
		if err != nil {
			return nil, err
		}
		log.Debug("loaded cluster config")
		p := NewLocalPool(cfg)
		log.WithFields(logrus.Fields{
			"cluster":            cfg.Name,
			"number_of_workers":  cfg.NumberOfWorkers,
			"threads_per_worker": cfg.ThreadsPerWorker,
		}).Info("started local cluster")
		return p, nil
	}
	if !errors.Is(err, reshapr.ErrConfigNotFound) {
		return nil, err
	}
	if looksLikeFile(target) {
		log.Error("cluster config file not found")
		return nil, err
	}
	if !isHostPort(target) {
		log.Error(msgUnrecognized)
		return nil, &reshapr.ConfigError{Err: reshapr.ErrClusterUnavailable, File: target, Msg: msgUnrecognized}
	}

	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		log.WithField("error", err).Error(msgRefused)
		return nil, &reshapr.ConfigError{Err: reshapr.ErrClusterUnavailable, File: target, Msg: msgRefused}
	}
	rp := &RemotePool{addr: target, client: Request{Client: clientName()}, c: rpc.NewClient(conn)}
	var info Info
	if err := rp.c.Call("Scheduler.Info", rp.client, &info); err != nil {
		rp.c.Close()
		log.WithField("error", err).Error(msgRefused)
		return nil, &reshapr.ConfigError{Err: reshapr.ErrClusterUnavailable, File: target, Msg: msgRefused}
	}
	log.WithFields(logrus.Fields{"cluster": info.Name, "slots": info.Slots}).Info("connected to cluster scheduler")
	return rp, nil
}

// clientName identifies this process to a scheduler.
func clientName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// looksLikeFile reports whether target names a configuration file rather
// than a network address.
func looksLikeFile(target string) bool {
	switch strings.ToLower(filepath.Ext(target)) {
	case ".yaml", ".yml":
		return true
	}
	return strings.ContainsRune(target, filepath.Separator)
}

func isHostPort(target string) bool {
	host, port, err := net.SplitHostPort(target)
	if err != nil || host == "" {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p > 0 && p < 65536
}

// LocalPool runs tasks in the current process, bounded by the size of the
// configured pool.
type LocalPool struct {
	cfg   *Config
	slots chan struct{}
}

// NewLocalPool returns a pool for cfg.
func NewLocalPool(cfg *Config) *LocalPool {
	return &LocalPool{cfg: cfg, slots: make(chan struct{}, cfg.Slots())}
}

// Acquire implements Pool.
func (p *LocalPool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release implements Pool.
func (p *LocalPool) Release() { <-p.slots }

// Close implements Pool.
func (p *LocalPool) Close() error { return nil }

func (p *LocalPool) String() string {
	return fmt.Sprintf("%s (%d slots)", p.cfg.Name, p.cfg.Slots())
}
