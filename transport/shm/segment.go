package shm

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// HeaderSize is the length prefix written before the payload
const HeaderSize = 8

// DefaultSize is the segment size used when shem_default_size is unset
const DefaultSize = 2 * 1024 * 1024

// DefaultDir is where segments live: /dev/shm when present, the temp
// directory otherwise.
func DefaultDir() string {
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// ParseSize reads a memory size such as "512", "64k", "2M" or "1G".
// Malformed values yield DefaultSize.
func ParseSize(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSize
	}
	mult := 1
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1024
	case 'm', 'M':
		mult = 1024 * 1024
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return DefaultSize
	}
	return n * mult
}

// Segment is a named memory-mapped file holding one length-prefixed payload.
// The creating side owns the file and unlinks it on close; the other side
// opens it by address.
type Segment struct {
	mu     sync.Mutex
	path   string
	fd     int
	mem    []byte
	owner  bool
	endian cdr.Endian
}

func segmentPath(dir, address string) string {
	return filepath.Join(dir, "rtm-shm-"+address)
}

// Create makes a new segment able to hold size payload bytes
func Create(dir, address string, size int, endian cdr.Endian) (*Segment, error) {
	if size <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidSize, "Segment", "Create", "size check")
	}
	path := segmentPath(dir, address)
	endian = orLittle(endian)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0600)
	if err != nil {
		return nil, errors.WrapTransient(err, "Segment", "Create", "open "+path)
	}
	s := &Segment{path: path, fd: fd, owner: true, endian: endian}
	if err := s.mapLocked(size + HeaderSize); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return nil, err
	}
	return s, nil
}

// Open maps an existing segment at its current size
func Open(dir, address string, endian cdr.Endian) (*Segment, error) {
	path := segmentPath(dir, address)
	fd, err := unix.Open(path, unix.O_RDWR, 0600)
	if err != nil {
		return nil, errors.WrapTransient(err, "Segment", "Open", "open "+path)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, errors.WrapTransient(err, "Segment", "Open", "stat "+path)
	}
	if st.Size < HeaderSize {
		_ = unix.Close(fd)
		return nil, errors.WrapInvalid(errors.ErrSegmentTooSmall, "Segment", "Open", "size check")
	}
	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.WrapTransient(err, "Segment", "Open", "mmap")
	}
	return &Segment{path: path, fd: fd, mem: mem, endian: orLittle(endian)}, nil
}

func orLittle(e cdr.Endian) cdr.Endian {
	if e == cdr.EndianUnset {
		return cdr.LittleEndian
	}
	return e
}

// mapLocked sizes the file to total bytes and maps it
func (s *Segment) mapLocked(total int) error {
	if err := unix.Ftruncate(s.fd, int64(total)); err != nil {
		return errors.WrapTransient(err, "Segment", "map", "ftruncate")
	}
	mem, err := unix.Mmap(s.fd, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.WrapTransient(err, "Segment", "map", "mmap")
	}
	s.mem = mem
	return nil
}

// Capacity returns the largest payload the segment holds
func (s *Segment) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		return 0
	}
	return len(s.mem) - HeaderSize
}

// Write stores data. An owner grows the segment when data does not fit and
// reports grown so the peer can reopen; a non-owner gets ErrSegmentTooSmall.
func (s *Segment) Write(data []byte) (grown bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		return false, errors.WrapInvalid(errors.ErrSegmentClosed, "Segment", "Write", "write")
	}
	if len(data)+HeaderSize > len(s.mem) {
		if !s.owner {
			return false, errors.WrapInvalid(errors.ErrSegmentTooSmall, "Segment", "Write", "size check")
		}
		if err := unix.Munmap(s.mem); err != nil {
			return false, errors.WrapTransient(err, "Segment", "Write", "munmap")
		}
		s.mem = nil
		if err := s.mapLocked(len(data) + HeaderSize); err != nil {
			return false, err
		}
		grown = true
	}
	s.endian.ByteOrder().PutUint64(s.mem[:HeaderSize], uint64(len(data)))
	copy(s.mem[HeaderSize:], data)
	return grown, nil
}

// Read returns a copy of the stored payload
func (s *Segment) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		return nil, errors.WrapInvalid(errors.ErrSegmentClosed, "Segment", "Read", "read")
	}
	n := s.endian.ByteOrder().Uint64(s.mem[:HeaderSize])
	if n > uint64(len(s.mem)-HeaderSize) {
		return nil, errors.WrapInvalid(errors.ErrDataCorrupted, "Segment", "Read", "length check")
	}
	out := make([]byte, n)
	copy(out, s.mem[HeaderSize:HeaderSize+int(n)])
	return out, nil
}

// Close unmaps the segment; the owner also removes the file
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		return nil
	}
	var errs []error
	if err := unix.Munmap(s.mem); err != nil {
		errs = append(errs, err)
	}
	s.mem = nil
	if err := unix.Close(s.fd); err != nil {
		errs = append(errs, err)
	}
	if s.owner {
		if err := unix.Unlink(s.path); err != nil && err != unix.ENOENT {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errs[0], "Segment", "Close", "unmap")
	}
	return nil
}

