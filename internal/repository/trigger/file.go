package trigger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/tripwire/internal/config"
	domain "github.com/oshokin/tripwire/internal/domain/trigger"
)

// Repository defines persistence operations for the trigger record.
type Repository interface {
	Load(ctx context.Context) (*domain.Record, error)
	Save(ctx context.Context, record *domain.Record) error
}

// FileRepository persists the trigger record to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON record file.
	path string
	// mu protects concurrent access to the record file.
	mu sync.Mutex
}

// Field names of the persisted document.
const (
	fieldSource      = "source"
	fieldObservedAt  = "observed_at"
	fieldHostname    = "hostname"
	fieldUsername    = "username"
	fieldActiveModes = "active_modes"
)

var (
	// ErrNotFound is returned when no trigger was recorded yet.
	ErrNotFound = errors.New("trigger record not found")
	// errNilRecord is returned when Save is called without a record.
	errNilRecord = errors.New("trigger record is not set")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the record from disk.
func (r *FileRepository) Load(_ context.Context) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read trigger file: %w", err)
	}

	var doc structpb.Struct
	if err = protojson.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode trigger file: %w", err)
	}

	return fromProto(&doc)
}

// Save writes the record to disk, replacing any earlier one.
func (r *FileRepository) Save(_ context.Context, record *domain.Record) error {
	if record == nil {
		return errNilRecord
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := toProto(record)
	if err != nil {
		return fmt.Errorf("encode trigger record: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode trigger record: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write trigger file: %w", err)
	}

	return nil
}

// fromProto converts the stored document into the domain Record.
func fromProto(doc *structpb.Struct) (*domain.Record, error) {
	fields := doc.GetFields()

	source, ok := domain.ParseSource(fields[fieldSource].GetStringValue())
	if !ok && fields[fieldSource].GetStringValue() != domain.Manual.String() {
		return nil, fmt.Errorf("decode trigger file: unknown source %q", fields[fieldSource].GetStringValue())
	}

	record := &domain.Record{Source: source}

	if raw := fields[fieldObservedAt].GetStringValue(); raw != "" {
		observedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("decode trigger file: %w", err)
		}

		record.ObservedAt = observedAt
	}

	hostname := fields[fieldHostname].GetStringValue()
	username := fields[fieldUsername].GetStringValue()

	if hostname != "" || username != "" {
		record.Actor = &domain.Actor{
			Hostname: hostname,
			Username: username,
		}
	}

	for _, mode := range fields[fieldActiveModes].GetListValue().GetValues() {
		if s, ok := domain.ParseSource(mode.GetStringValue()); ok {
			record.ActiveModes = append(record.ActiveModes, s)
		}
	}

	return record, nil
}

// toProto converts the domain Record into a JSON document.
func toProto(record *domain.Record) (*structpb.Struct, error) {
	modes := make([]any, 0, len(record.ActiveModes))
	for _, s := range record.ActiveModes {
		modes = append(modes, s.String())
	}

	doc := map[string]any{
		fieldSource:      record.Source.String(),
		fieldActiveModes: modes,
	}

	if !record.ObservedAt.IsZero() {
		doc[fieldObservedAt] = record.ObservedAt.UTC().Format(time.RFC3339Nano)
	}

	if record.Actor != nil {
		doc[fieldHostname] = record.Actor.Hostname
		doc[fieldUsername] = record.Actor.Username
	}

	return structpb.NewStruct(doc)
}
