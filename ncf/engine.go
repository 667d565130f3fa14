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

// Package ncf opens, computes, and writes netCDF datasets for reshapr
// extractions.
package ncf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/ctessum/requestcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/reshapr"
)

// Limiter bounds the number of concurrently executing tasks.
type Limiter interface {
	// Acquire blocks until a task slot is available or ctx is done.
	Acquire(ctx context.Context) error
	Release()
}

// FileCacheSize is the number of opened file headers that are kept in
// memory.
var FileCacheSize = 256

// Engine is a reshapr.Engine that reads and writes netCDF classic and
// netCDF-4 files.
type Engine struct {
	limiter Limiter
	files   *requestcache.Cache

	mu     sync.Mutex
	opened []*ncFile

	// Registry holds the engine metrics.
	Registry *prometheus.Registry
	metrics  *Metrics

	Log logrus.FieldLogger
}

// NewEngine returns an engine whose tasks are bounded by limiter. A nil
// limiter bounds tasks to the number of CPUs.
func NewEngine(limiter Limiter) *Engine {
	if limiter == nil {
		limiter = NewSemaphore(runtime.GOMAXPROCS(-1))
	}
	reg := prometheus.NewRegistry()
	e := &Engine{
		limiter:  limiter,
		Registry: reg,
		metrics:  NewMetrics(reg),
		Log:      reshapr.Log,
	}
	e.files = requestcache.NewCache(e.openFile, runtime.GOMAXPROCS(-1),
		requestcache.Deduplicate(), requestcache.Memory(FileCacheSize))
	return e
}

// ncFile is an opened netCDF classic or netCDF-4 file.
type ncFile struct {
	path    string
	numRecs int
	header
	r slabReader
}

// header describes the dimensions, variables, and attributes of a file.
// The record dimension has length zero. Global attributes are stored
// under the empty name.
type header struct {
	dims    []string
	lengths []int
	vars    []string
	varDims map[string][]string
	attrs   map[string]reshapr.Attributes
}

// slabReader reads variable values from an opened file.
type slabReader interface {
	// readSlab returns the elements of variable name between the corners
	// begin and end, inclusive.
	readSlab(name string, begin, end []int) ([]float64, error)
	Close() error
}

// hdf5Signature starts every netCDF-4 file.
var hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

// openFile opens the file at the path in request and reads its header.
// netCDF-4 files are recognized by their HDF5 signature.
func (e *Engine) openFile(ctx context.Context, request interface{}) (interface{}, error) {
	path := request.(string)
	isHDF5, err := hasSignature(path, hdf5Signature)
	if err != nil {
		return nil, fmt.Errorf("ncf: %w", err)
	}
	var nf *ncFile
	format := "classic"
	if isHDF5 {
		format = "netCDF-4"
		nf, err = openHDF5(path)
	} else {
		nf, err = openCDF(path)
	}
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.opened = append(e.opened, nf)
	e.mu.Unlock()
	e.metrics.FilesOpened.Inc()
	e.Log.WithFields(logrus.Fields{
		"path":      path,
		"n_records": nf.numRecs,
		"nc_format": format,
	}).Debug("opened netCDF file")
	return nf, nil
}

func hasSignature(path string, sig []byte) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	b := make([]byte, len(sig))
	if _, err := io.ReadFull(f, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(b, sig), nil
}

// file returns the opened file at path, opening it if it is not cached.
func (e *Engine) file(ctx context.Context, path string) (*ncFile, error) {
	r, err := e.files.NewRequest(ctx, path, path).Result()
	if err != nil {
		return nil, err
	}
	return r.(*ncFile), nil
}

// Close closes all of the files that the engine has opened.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	for _, f := range e.opened {
		if cerr := f.r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	e.opened = nil
	return err
}

// WriteMetrics writes the engine metrics to path in the Prometheus text
// format.
func (e *Engine) WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, e.Registry)
}

// forEach calls f for i in [0, n), running calls concurrently within the
// bounds of the engine limiter. It returns the first error.
func (e *Engine) forEach(ctx context.Context, n int, f func(ctx context.Context, i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	setErr := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for i := 0; i < n; i++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			setErr(err)
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer e.limiter.Release()
			if err := f(ctx, i); err != nil {
				setErr(err)
			}
		}(i)
	}
	wg.Wait()
	return firstErr
}

// Semaphore is a Limiter that allows a fixed number of concurrent tasks.
type Semaphore chan struct{}

// NewSemaphore returns a Semaphore with n slots.
func NewSemaphore(n int) Semaphore {
	if n < 1 {
		n = 1
	}
	return make(Semaphore, n)
}

// Acquire implements Limiter.
func (s Semaphore) Acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release implements Limiter.
func (s Semaphore) Release() { <-s }
