// Copyright 2014-2022 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBucket      = "nstack"
	DefaultOpenTimeout = time.Second
	DefaultFileMode    = os.FileMode(0o600)
)

// Options configures a backend. The zero value is not useful; backends
// start from defaultOptions and apply each Option in turn.
type Options struct {
	Logger   *zap.SugaredLogger
	Bucket   string
	Timeout  time.Duration
	FileMode os.FileMode
	Compress bool
}

// Option changes one field of Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Logger:   zap.NewNop().Sugar(),
		Bucket:   DefaultBucket,
		Timeout:  DefaultOpenTimeout,
		FileMode: DefaultFileMode,
		Compress: true,
	}
}

func newOptions(opts ...Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// WithLogger sets the logger used by the backend.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

// WithBucket sets the bbolt bucket Disk keeps its blobs in.
func WithBucket(name string) Option {
	return func(o *Options) {
		o.Bucket = name
	}
}

// WithOpenTimeout bounds how long Open waits for the database file lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithFileMode sets the permissions of a newly created database file.
func WithFileMode(mode os.FileMode) Option {
	return func(o *Options) {
		o.FileMode = mode
	}
}

// WithCompression turns snappy compression of new blobs on or off. Blobs
// already stored are readable either way.
func WithCompression(on bool) Option {
	return func(o *Options) {
		o.Compress = on
	}
}
