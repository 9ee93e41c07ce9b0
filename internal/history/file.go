package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

const fileSuffix = ".json.zst"

// FileStore keeps one zstd-compressed JSON document per session in a
// directory. Writes go to a temporary file that is renamed into place.
type FileStore struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

type fileDocument struct {
	ID       string           `json:"id"`
	Messages []models.Message `json:"messages"`
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("file store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("file store: zstd decoder: %w", err)
	}
	return &FileStore{dir: dir, enc: enc, dec: dec}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileSuffix)
}

func (s *FileStore) Load(_ context.Context, id string) ([]models.Message, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("load session %s: zstd: %w", id, err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return doc.Messages, nil
}

func (s *FileStore) Save(_ context.Context, id string, messages []models.Message) error {
	if err := validID(id); err != nil {
		return err
	}
	raw, err := json.Marshal(fileDocument{ID: id, Messages: messages})
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(s.enc.EncodeAll(raw, nil)); err != nil {
		tmp.Close()
		return fmt.Errorf("save session %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// List reports message counts by decoding every session file.
func (s *FileStore) List(ctx context.Context) ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []SessionInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, fileSuffix)
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		msgs, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, SessionInfo{ID: id, Messages: len(msgs), UpdatedAt: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) Close() error {
	s.dec.Close()
	return s.enc.Close()
}
