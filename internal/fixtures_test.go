package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/crm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedFixtures(t *testing.T) {
	f, err := LoadFixtures(context.Background(), EmbeddedFixtures())
	require.NoError(t, err)
	assert.Len(t, f.Contacts, 5)
	assert.Len(t, f.Deals, 6)
	assert.Len(t, f.Activities, 6)
	assert.Len(t, f.Tasks, 5)
	assert.Equal(t, "John Smith", f.Contacts[0].Name)
	assert.False(t, f.Activities[2].DealID.Valid)
}

func TestFixturesCloneIsIndependent(t *testing.T) {
	f, err := LoadFixtures(context.Background(), EmbeddedFixtures())
	require.NoError(t, err)

	clone := f.Clone()
	clone.Contacts[0].Name = "Changed"
	*clone.Activities[0].Duration = 999

	assert.Equal(t, "John Smith", f.Contacts[0].Name)
	assert.Equal(t, 45, *f.Activities[0].Duration)
	assert.NotNil(t, (*Fixtures)(nil).Clone())
}

func TestDirFixturesMissingFilesLoadEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ContactsFile), []byte(`[{"id":3,"name":"Ana Lima"}]`), 0o600))

	src, err := NewFixtureSource(context.Background(), crm.FixtureConfig{Source: dir})
	require.NoError(t, err)
	f, err := LoadFixtures(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, f.Contacts, 1)
	assert.Equal(t, int64(3), f.Contacts[0].ID)
	assert.NotNil(t, f.Deals)
	assert.Empty(t, f.Deals)
	assert.Empty(t, f.Tasks)
}

func TestDirFixturesDecodeError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DealsFile), []byte(`{"not":"a list"}`), 0o600))

	_, err := LoadFixtures(context.Background(), DirFixtures(dir))
	assert.ErrorContains(t, err, "decode fixture deals.json")
}

func TestNewFixtureSource(t *testing.T) {
	ctx := context.Background()

	src, err := NewFixtureSource(ctx, crm.FixtureConfig{})
	require.NoError(t, err)
	assert.Equal(t, EmbeddedFixtures(), src)

	_, err = NewFixtureSource(ctx, crm.FixtureConfig{Source: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(file, []byte(`[]`), 0o600))
	_, err = NewFixtureSource(ctx, crm.FixtureConfig{Source: file})
	assert.ErrorContains(t, err, "not a directory")
}

func TestParseS3URL(t *testing.T) {
	bucket, prefix, err := ParseS3URL("s3://crm-fixtures/seed/2024/")
	require.NoError(t, err)
	assert.Equal(t, "crm-fixtures", bucket)
	assert.Equal(t, "seed/2024", prefix)

	for _, raw := range []string{"http://bucket/key", "s3:///key", "::"} {
		_, _, err := ParseS3URL(raw)
		assert.Error(t, err, raw)
	}
}

// fakeS3 serves objects from memory and records uploads.
type fakeS3 struct {
	objects map[string][]byte
	failGet error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[aws.ToString(in.Bucket)+"/"+key] = data
	return &manager.UploadOutput{Key: aws.String(key)}, nil
}

func TestS3FixturesRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}

	f, err := LoadFixtures(ctx, EmbeddedFixtures())
	require.NoError(t, err)
	f.Tasks = f.Tasks[:2]

	keys, err := UploadFixtures(ctx, fake, "crm-fixtures", "seed", f)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed/contacts.json", "seed/deals.json", "seed/activities.json", "seed/tasks.json"}, keys)

	loaded, err := LoadFixtures(ctx, newS3FixtureSource(fake, "crm-fixtures", "seed"))
	require.NoError(t, err)
	assert.Len(t, loaded.Contacts, 5)
	assert.Len(t, loaded.Tasks, 2)
	assert.Equal(t, f.Deals, loaded.Deals)
}

func TestS3FixturesMissingKeyIsEmpty(t *testing.T) {
	src := newS3FixtureSource(&fakeS3{objects: map[string][]byte{}}, "crm-fixtures", "")
	f, err := LoadFixtures(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, f.Contacts)
}

func TestS3FixturesGetError(t *testing.T) {
	src := newS3FixtureSource(&fakeS3{failGet: errors.New("access denied")}, "crm-fixtures", "seed")
	_, err := LoadFixtures(context.Background(), src)
	assert.ErrorContains(t, err, "s3://crm-fixtures/seed/contacts.json")
}
