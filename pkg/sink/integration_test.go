//go:build integration

package sink

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/internal/testutil"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Run with: go test -tags integration ./pkg/sink/...

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start %s", req.Image)

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})
	return container
}

func TestRedisSink_Integration(t *testing.T) {
	ctx := context.Background()
	container := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	t.Run("round trip", func(t *testing.T) {
		testRedisRoundTrip(t, client)
	})
	t.Run("replace", func(t *testing.T) {
		testRedisReplace(t, client)
	})
}

func TestObjectSink_Integration(t *testing.T) {
	ctx := context.Background()
	const (
		rootUser     = "root"
		rootPassword = "rootpass"
		bucket       = "catalogs"
	)

	container := startContainer(t, testcontainers.ContainerRequest{
		Image: "docker.io/minio/minio:latest",
		Env: map[string]string{
			"MINIO_ROOT_USER":     rootUser,
			"MINIO_ROOT_PASSWORD": rootPassword,
		},
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	admin, err := minio.New(host+":"+port.Port(), &minio.Options{
		Creds: credentials.NewStaticV4(rootUser, rootPassword, ""),
	})
	require.NoError(t, err)

	cfg := ObjectConfig{
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: rootUser,
		SecretKey: rootPassword,
		Bucket:    bucket,
		Prefix:    "ucsb",
	}

	_, err = NewObjectSink(ctx, cfg)
	require.Error(t, err, "missing bucket must fail fast")
	assert.Contains(t, err.Error(), "does not exist")

	require.NoError(t, admin.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"}))

	s, err := NewObjectSink(ctx, cfg)
	require.NoError(t, err)

	courses := testutil.MakeCourses(12, "20202")
	require.NoError(t, s.Write(ctx, NewCatalog("20202", courses)))

	obj, err := admin.GetObject(ctx, bucket, "ucsb/20202/classes.json", minio.GetObjectOptions{})
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)

	expected, err := EncodeCourses(courses)
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(data))
}

func TestPostgresSink_Integration(t *testing.T) {
	ctx := context.Background()
	container := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ucsb",
			"POSTGRES_PASSWORD": "ucsb",
			"POSTGRES_DB":       "ucsb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://ucsb:ucsb@%s:%s/ucsb?sslmode=disable", host, port.Port())
	s, err := NewPostgresSink(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	courses := testutil.MakeCourses(30, "20202")
	require.NoError(t, s.Write(ctx, NewCatalog("20202", courses)))

	n, err := s.Count(ctx, "20202")
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	// A smaller second run upserts the survivors and drops the rest.
	require.NoError(t, s.Write(ctx, NewCatalog("20202", courses[:10])))
	n, err = s.Count(ctx, "20202")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	var title string
	err = s.pool.QueryRow(ctx,
		`SELECT payload->>'title' FROM ucsb_courses WHERE quarter = $1 AND course_id = $2`,
		"20202", courses[3].CourseID).Scan(&title)
	require.NoError(t, err)
	assert.Equal(t, courses[3].Title, title)

	require.NoError(t, s.Write(ctx, NewCatalog("20202", []curriculum.Course{})))
	n, err = s.Count(ctx, "20202")
	require.NoError(t, err)
	assert.Zero(t, n)
}
