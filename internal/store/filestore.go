package store

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileBlockStore is a log-structured, file-backed BlockStore: every Put
// appends a self-delimited [id][length][data] record at EOF and fsyncs
// before returning, so a record is never considered written until it is
// durable. Opening a store replays the file from the start, keeping only
// the last offset seen per id, so a later Put transparently supersedes an
// earlier one without any in-place rewrite.
type FileBlockStore struct {
	mu          sync.Mutex
	file        *os.File
	index       map[uint64]int64
	maxPageSize int
	log         *logrus.Entry
}

// Open opens (creating if necessary) a FileBlockStore backed by path.
func Open(path string, maxPageSize int) (*FileBlockStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	s := &FileBlockStore{
		file:        f,
		index:       make(map[uint64]int64),
		maxPageSize: maxPageSize,
		log:         logrus.WithField("component", "filestore").WithField("path", path),
	}
	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileBlockStore) replay() error {
	offset := int64(0)
	for {
		var header [12]byte
		n, err := s.file.ReadAt(header[:], offset)
		if err == io.EOF && n == 0 {
			break
		}
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "replay: read header")
		}
		if n < len(header) {
			// truncated trailing record from a crash mid-append; stop
			// replaying rather than error, since crash recovery itself is
			// out of scope and we simply ignore the partial tail.
			break
		}
		id := binary.BigEndian.Uint64(header[0:8])
		length := binary.BigEndian.Uint32(header[8:12])
		s.index[id] = offset
		offset += int64(len(header)) + int64(length)
	}
	s.log.WithField("records", len(s.index)).Debug("replayed store")
	return nil
}

func (s *FileBlockStore) Get(id uint64) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset, ok := s.index[id]
	if !ok {
		return nil, false, nil
	}
	var header [12]byte
	if _, err := s.file.ReadAt(header[:], offset); err != nil {
		return nil, false, errors.Wrap(err, "read header")
	}
	length := binary.BigEndian.Uint32(header[8:12])
	data := make([]byte, length)
	if _, err := s.file.ReadAt(data, offset+int64(len(header))); err != nil {
		return nil, false, errors.Wrap(err, "read body")
	}
	return data, true, nil
}

func (s *FileBlockStore) Put(id uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.Wrap(err, "seek end")
	}
	var header [12]byte
	binary.BigEndian.PutUint64(header[0:8], id)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(data)))
	if _, err := s.file.Write(header[:]); err != nil {
		return errors.Wrap(err, "write header")
	}
	if _, err := s.file.Write(data); err != nil {
		return errors.Wrap(err, "write body")
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrap(err, "fsync")
	}
	s.index[id] = offset
	s.log.WithField("id", id).WithField("bytes", len(data)).Debug("put")
	return nil
}

func (s *FileBlockStore) Generator() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.index))
	for id := range s.index {
		data, ok, err := s.getLocked(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Record{ID: id, Data: data})
		}
	}
	return out, nil
}

func (s *FileBlockStore) getLocked(id uint64) ([]byte, bool, error) {
	offset, ok := s.index[id]
	if !ok {
		return nil, false, nil
	}
	var header [12]byte
	if _, err := s.file.ReadAt(header[:], offset); err != nil {
		return nil, false, errors.Wrap(err, "read header")
	}
	length := binary.BigEndian.Uint32(header[8:12])
	data := make([]byte, length)
	if _, err := s.file.ReadAt(data, offset+int64(len(header))); err != nil {
		return nil, false, errors.Wrap(err, "read body")
	}
	return data, true, nil
}

func (s *FileBlockStore) Options() Options {
	return Options{MaxPageSize: s.maxPageSize, SupportsInternalDelete: false}
}

// Close releases the underlying file handle.
func (s *FileBlockStore) Close() error {
	return s.file.Close()
}
