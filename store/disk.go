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
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Every value written by Disk starts with one of these tags.
const (
	tagRaw    byte = 0
	tagSnappy byte = 1
)

// Disk is a Store backed by a single bbolt database file.
type Disk struct {
	db        *bolt.DB
	bucket    []byte
	compress  bool
	log       *zap.SugaredLogger
	ephemeral bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the database file at path.
func Open(path string, opts ...Option) (*Disk, error) {
	o := newOptions(opts...)
	db, err := bolt.Open(path, o.FileMode, &bolt.Options{Timeout: o.Timeout})
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %s", path)
	}
	bucket := []byte(o.Bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "store: create bucket %q", o.Bucket)
	}
	o.Logger.Infof("disk store opened: path=%s bucket=%s compress=%v", path, o.Bucket, o.Compress)
	return &Disk{
		db:       db,
		bucket:   bucket,
		compress: o.Compress,
		log:      o.Logger,
	}, nil
}

// OpenEphemeral opens a Disk store on a fresh file in the system temporary
// directory. The file is removed by Close.
func OpenEphemeral(opts ...Option) (*Disk, error) {
	path := filepath.Join(os.TempDir(), "nstack-"+uuid.NewString()+".db")
	d, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	d.ephemeral = true
	return d, nil
}

// Path returns the database file name.
func (d *Disk) Path() string {
	return d.db.Path()
}

// Close closes the database, removing the file if it was opened with
// OpenEphemeral. Close is idempotent.
func (d *Disk) Close() error {
	d.closeOnce.Do(func() {
		path := d.db.Path()
		if err := d.db.Close(); err != nil {
			d.closeErr = errors.Wrap(err, "store: close")
			return
		}
		if d.ephemeral {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				d.closeErr = errors.Wrapf(err, "store: remove %s", path)
				return
			}
		}
		d.log.Infof("disk store closed: path=%s", path)
	})
	return d.closeErr
}

// Put implements Store.
func (d *Disk) Put(data []byte) (ID, error) {
	id := Sum(data)
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(d.bucket)
		if b.Get(id[:]) != nil {
			return nil
		}
		return b.Put(id[:], d.encode(data))
	})
	if err != nil {
		return ID{}, d.wrap(err, "put %s", id)
	}
	d.log.Debugf("disk put: id=%s len=%d", id, len(data))
	return id, nil
}

// Get implements Store.
func (d *Disk) Get(id ID) ([]byte, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(d.bucket).Get(id[:])
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction.
		var err error
		data, err = decode(v)
		return err
	})
	if err != nil {
		return nil, d.wrap(err, "get %s", id)
	}
	if Sum(data) != id {
		d.log.Warnf("disk get: digest mismatch for id=%s", id)
		return nil, errors.Wrapf(ErrCorrupt, "get %s", id)
	}
	return data, nil
}

func (d *Disk) encode(data []byte) []byte {
	if !d.compress {
		return append([]byte{tagRaw}, data...)
	}
	out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(data)))
	out[0] = tagSnappy
	return append(out, snappy.Encode(nil, data)...)
}

func decode(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return nil, ErrCorrupt
	}
	switch v[0] {
	case tagRaw:
		return append([]byte(nil), v[1:]...), nil
	case tagSnappy:
		out, err := snappy.Decode(nil, v[1:])
		if err != nil {
			return nil, errors.Wrap(ErrCorrupt, err.Error())
		}
		return out, nil
	default:
		return nil, errors.Wrapf(ErrCorrupt, "unknown value tag %d", v[0])
	}
}

func (d *Disk) wrap(err error, format string, args ...interface{}) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		err = ErrClosed
	}
	return errors.Wrapf(err, "disk "+format, args...)
}
