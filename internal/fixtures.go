package internal

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
)

//go:embed fixtures/*.json
var embeddedFixtures embed.FS

// Fixture file names, shared by every source.
const (
	ContactsFile   = "contacts.json"
	DealsFile      = "deals.json"
	ActivitiesFile = "activities.json"
	TasksFile      = "tasks.json"
)

// Fixtures are the seed collections handed to the mock stores.
type Fixtures struct {
	Contacts   []crm.Contact  `json:"contacts"`
	Deals      []crm.Deal     `json:"deals"`
	Activities []crm.Activity `json:"activities"`
	Tasks      []crm.Task     `json:"tasks"`
}

// Clone returns an independent copy so each store owns its records.
func (f *Fixtures) Clone() *Fixtures {
	if f == nil {
		return &Fixtures{}
	}
	out := &Fixtures{
		Contacts:   slices.Clone(f.Contacts),
		Deals:      slices.Clone(f.Deals),
		Activities: slices.Clone(f.Activities),
		Tasks:      slices.Clone(f.Tasks),
	}
	for i, a := range out.Activities {
		if a.Duration != nil {
			d := *a.Duration
			out.Activities[i].Duration = &d
		}
	}
	return out
}

// FixtureSource reads one fixture file. found is false when the file does
// not exist, which loads as an empty collection.
type FixtureSource interface {
	ReadFixture(ctx context.Context, name string) (data []byte, found bool, err error)
}

type embeddedSource struct{}

// EmbeddedFixtures returns the seed data compiled into the binary.
func EmbeddedFixtures() FixtureSource { return embeddedSource{} }

func (embeddedSource) ReadFixture(_ context.Context, name string) ([]byte, bool, error) {
	data, err := embeddedFixtures.ReadFile("fixtures/" + name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

type dirSource struct {
	dir string
}

// DirFixtures reads fixture files from dir.
func DirFixtures(dir string) FixtureSource { return dirSource{dir: dir} }

func (s dirSource) ReadFixture(_ context.Context, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// NewFixtureSource selects the source named by cfg.Source: "embedded" (or
// empty), an s3://bucket/prefix URL, or a directory path.
func NewFixtureSource(ctx context.Context, cfg crm.FixtureConfig) (FixtureSource, error) {
	if err := ValidateFixtureConfig(cfg); err != nil {
		return nil, err
	}
	source := strings.TrimSpace(cfg.Source)
	switch {
	case source == "" || source == "embedded":
		return EmbeddedFixtures(), nil
	case strings.HasPrefix(source, "s3://"):
		return NewS3FixtureSource(ctx, cfg)
	default:
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("fixture directory %s: %w", source, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("fixture source %s is not a directory", source)
		}
		return DirFixtures(source), nil
	}
}

// LoadFixtures reads all four collections from src.
func LoadFixtures(ctx context.Context, src FixtureSource) (*Fixtures, error) {
	f := &Fixtures{}
	if err := readFixture(ctx, src, ContactsFile, &f.Contacts); err != nil {
		return nil, err
	}
	if err := readFixture(ctx, src, DealsFile, &f.Deals); err != nil {
		return nil, err
	}
	if err := readFixture(ctx, src, ActivitiesFile, &f.Activities); err != nil {
		return nil, err
	}
	if err := readFixture(ctx, src, TasksFile, &f.Tasks); err != nil {
		return nil, err
	}
	zap.S().Debugw("loaded fixtures",
		"contacts", len(f.Contacts),
		"deals", len(f.Deals),
		"activities", len(f.Activities),
		"tasks", len(f.Tasks))
	return f, nil
}

func readFixture[T any](ctx context.Context, src FixtureSource, name string, out *[]T) error {
	data, found, err := src.ReadFixture(ctx, name)
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", name, err)
	}
	if !found {
		*out = []T{}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode fixture %s: %w", name, err)
	}
	if *out == nil {
		*out = []T{}
	}
	return nil
}
