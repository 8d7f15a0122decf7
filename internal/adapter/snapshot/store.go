// Package snapshot persists each partition as one zstd-compressed JSON file.
// It implements the town and contract repositories for deployments without a
// database.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"townsim/internal/app/ports"
	"townsim/internal/domain/contract"
	"townsim/internal/domain/town"
)

const FormatVersion = 1

type Header struct {
	Version   int       `json:"version"`
	Partition string    `json:"partition"`
	SavedAt   time.Time `json:"saved_at"`
	Tick      uint64    `json:"tick"`
	Towns     int       `json:"towns"`
	Contracts int       `json:"contracts"`
}

type PartitionV1 struct {
	Header    Header               `json:"header"`
	Towns     []*town.Town         `json:"towns"`
	Contracts []*contract.Contract `json:"contracts"`
	Payments  []contract.Payment   `json:"payments"`
}

type Store struct {
	Dir string
	Now func() time.Time

	mu sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir, Now: time.Now}
}

func (s *Store) Path(partition string) string {
	return filepath.Join(s.Dir, fileName(partition)+".snap.zst")
}

func fileName(partition string) string {
	var b strings.Builder
	for _, r := range partition {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "~%x", r)
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func (s *Store) ListByPartition(_ context.Context, partition string) ([]*town.Town, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return nil, err
	}
	return snap.Towns, nil
}

func (s *Store) SaveAll(_ context.Context, partition string, towns []*town.Town, removedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return err
	}
	byID := make(map[string]*town.Town, len(snap.Towns))
	for _, t := range snap.Towns {
		byID[t.ID] = t
	}
	for _, id := range removedIDs {
		delete(byID, id)
	}
	for _, t := range towns {
		cp := t.Clone()
		if prev, ok := byID[t.ID]; ok {
			cp.Version = prev.Version + 1
		} else if cp.Version == 0 {
			cp.Version = 1
		}
		byID[t.ID] = cp
	}
	snap.Towns = snap.Towns[:0]
	for _, t := range byID {
		snap.Towns = append(snap.Towns, t)
	}
	sort.Slice(snap.Towns, func(i, j int) bool { return snap.Towns[i].ID < snap.Towns[j].ID })
	return s.write(partition, snap)
}

func (s *Store) ListContracts(_ context.Context, partition string) ([]*contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return nil, err
	}
	return snap.Contracts, nil
}

func (s *Store) SaveContracts(_ context.Context, partition string, contracts []*contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return err
	}
	snap.Contracts = make([]*contract.Contract, 0, len(contracts))
	for _, c := range contracts {
		snap.Contracts = append(snap.Contracts, c.Clone())
	}
	sort.Slice(snap.Contracts, func(i, j int) bool { return snap.Contracts[i].ID < snap.Contracts[j].ID })
	return s.write(partition, snap)
}

func (s *Store) ListPayments(_ context.Context, partition string) ([]contract.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return nil, err
	}
	return snap.Payments, nil
}

func (s *Store) SavePayments(_ context.Context, partition string, payments []contract.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return err
	}
	snap.Payments = append([]contract.Payment(nil), payments...)
	sort.Slice(snap.Payments, func(i, j int) bool { return snap.Payments[i].ID < snap.Payments[j].ID })
	return s.write(partition, snap)
}

// LoadTick returns the tick recorded in the partition header.
func (s *Store) LoadTick(_ context.Context, partition string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return 0, err
	}
	return snap.Header.Tick, nil
}

func (s *Store) SaveTick(_ context.Context, partition string, tick uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(partition)
	if err != nil {
		return err
	}
	snap.Header.Tick = tick
	return s.write(partition, snap)
}

// read returns an empty snapshot when the partition has never been written.
func (s *Store) read(partition string) (PartitionV1, error) {
	snap, err := ReadPartition(s.Path(partition))
	if errors.Is(err, ports.ErrNotFound) {
		return PartitionV1{Header: Header{Version: FormatVersion, Partition: partition}}, nil
	}
	if err != nil {
		return PartitionV1{}, err
	}
	if snap.Header.Partition != "" && snap.Header.Partition != partition {
		return PartitionV1{}, fmt.Errorf("%w: snapshot %s holds partition %q", ports.ErrConflict, s.Path(partition), snap.Header.Partition)
	}
	return snap, nil
}

func (s *Store) write(partition string, snap PartitionV1) error {
	snap.Header = Header{
		Version:   FormatVersion,
		Partition: partition,
		SavedAt:   s.Now().UTC(),
		Tick:      snap.Header.Tick,
		Towns:     len(snap.Towns),
		Contracts: len(snap.Contracts),
	}
	return WritePartition(s.Path(partition), snap)
}

// WritePartition writes to a temp file and renames it over path, so a crash
// never leaves a truncated snapshot behind.
func WritePartition(path string, snap PartitionV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap PartitionV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadPartition decodes a snapshot file. A missing file is ports.ErrNotFound.
func ReadPartition(path string) (PartitionV1, error) {
	var snap PartitionV1
	f, err := openSnapshot(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is for tooling; the body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	if snap.Header.Version != FormatVersion {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the first line of a snapshot.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := openSnapshot(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func openSnapshot(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, path)
	}
	return f, err
}
