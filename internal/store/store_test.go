package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hitcount/internal/testutil"
)

// visitorKinds are the backends that deduplicate visitors.
var visitorKinds = []Kind{KindBinary, KindJSON, KindSQLite}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := ParseKind(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, KindJSON, got)

	_, err = ParseKind("pickle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Kind("xml"), "unused", quietOptions())
	require.Error(t, err)
}

func TestOpen_CreatesWithInitialValues(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			path := testPath(t, kind)
			opts := quietOptions()
			opts.InitialCount = 100
			opts.InitialUnique = 7

			c := openTestCounter(t, kind, path, opts)
			assert.Equal(t, uint32(100), c.Count())
			assert.Equal(t, uint32(7), c.Unique())
			require.NoError(t, c.Close())

			_, err := os.Stat(path)
			require.NoError(t, err, "file should exist after close")

			// Initial values only apply to a new file.
			opts.InitialCount = 5
			c = openTestCounter(t, kind, path, opts)
			defer c.Close()
			assert.Equal(t, uint32(100), c.Count())
			assert.Equal(t, uint32(7), c.Unique())
		})
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			_, err := Open(context.Background(), kind, "/nonexistent/dir/hits.dat", quietOptions())
			require.Error(t, err)
			assert.True(t, IsIOError(err), "got %v", err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, kind := range visitorKinds {
		t.Run(string(kind), func(t *testing.T) {
			path := testPath(t, kind)

			c := openTestCounter(t, kind, path, quietOptions())
			require.NoError(t, c.RecordHit())
			for _, id := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1", "10.0.0.3"} {
				_, err := c.RecordVisitor(id)
				require.NoError(t, err)
			}
			require.NoError(t, c.RecordHit())

			count, unique := c.Count(), c.Unique()
			visitors, err := c.Visitors()
			require.NoError(t, err)
			require.NoError(t, c.Close())

			assert.Equal(t, uint32(6), count)
			assert.Equal(t, uint32(3), unique)

			c = openTestCounter(t, kind, path, quietOptions())
			defer c.Close()

			assert.Equal(t, count, c.Count())
			assert.Equal(t, unique, c.Unique())
			got, err := c.Visitors()
			require.NoError(t, err)
			assert.ElementsMatch(t, visitors, got)
			assert.ElementsMatch(t, testutil.Fingerprints("10.0.0.1", "10.0.0.2", "10.0.0.3"), got)
		})
	}
}

func TestRecordVisitor_Duplicate(t *testing.T) {
	for _, kind := range visitorKinds {
		t.Run(string(kind), func(t *testing.T) {
			c := openTestCounter(t, kind, testPath(t, kind), quietOptions())
			defer c.Close()

			seen, err := c.RecordVisitor("198.51.100.4")
			require.NoError(t, err)
			assert.False(t, seen, "first visit is new")

			seen, err = c.RecordVisitor("198.51.100.4")
			require.NoError(t, err)
			assert.True(t, seen, "second visit is already known")

			assert.Equal(t, uint32(2), c.Count())
			assert.Equal(t, uint32(1), c.Unique())
		})
	}
}

func TestMonotonicity(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			c := openTestCounter(t, kind, testPath(t, kind), quietOptions())
			defer c.Close()

			prevCount, prevUnique := c.Count(), c.Unique()
			for i := 0; i < 50; i++ {
				var err error
				switch i % 3 {
				case 0:
					err = c.RecordHit()
				default:
					_, err = c.RecordVisitor(fmt.Sprintf("visitor-%d", i%7))
				}
				require.NoError(t, err)

				assert.GreaterOrEqual(t, c.Count(), prevCount)
				assert.GreaterOrEqual(t, c.Unique(), prevUnique)
				assert.GreaterOrEqual(t, c.Count(), c.Unique())
				prevCount, prevUnique = c.Count(), c.Unique()
			}
			assert.Equal(t, uint32(50), c.Count())
		})
	}
}

func TestClosed(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			c := openTestCounter(t, kind, testPath(t, kind), quietOptions())
			require.NoError(t, c.Close())
			require.NoError(t, c.Close(), "second Close is a no-op")

			err := c.RecordHit()
			assert.True(t, IsClosed(err), "RecordHit: %v", err)
			assert.ErrorIs(t, err, ErrClosed)

			_, err = c.RecordVisitor("x")
			assert.True(t, IsClosed(err), "RecordVisitor: %v", err)

			_, err = c.Visitors()
			assert.True(t, IsClosed(err), "Visitors: %v", err)
		})
	}
}

func TestConcurrentSessions(t *testing.T) {
	const workers = 8

	for _, kind := range visitorKinds {
		t.Run(string(kind), func(t *testing.T) {
			path := testPath(t, kind)
			require.NoError(t, openTestCounter(t, kind, path, quietOptions()).Close())

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					c, err := Open(context.Background(), kind, path, quietOptions())
					if err != nil {
						errs <- err
						return
					}
					if err := c.RecordHit(); err != nil {
						errs <- err
					}
					if _, err := c.RecordVisitor(fmt.Sprintf("worker-%d", i)); err != nil {
						errs <- err
					}
					errs <- c.Close()
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			c := openTestCounter(t, kind, path, quietOptions())
			defer c.Close()
			assert.Equal(t, uint32(2*workers), c.Count(), "no session may lose another's update")
			assert.Equal(t, uint32(workers), c.Unique())
			visitors, err := c.Visitors()
			require.NoError(t, err)
			assert.Len(t, visitors, workers)
		})
	}
}

func TestOpen_LockTimeout(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			path := testPath(t, kind)
			holder := openTestCounter(t, kind, path, quietOptions())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			opts := quietOptions()
			opts.LockPoll = 5 * time.Millisecond

			_, err := Open(ctx, kind, path, opts)
			require.Error(t, err)
			assert.True(t, IsLockTimeout(err), "got %v", err)

			require.NoError(t, holder.Close())

			c := openTestCounter(t, kind, path, quietOptions())
			require.NoError(t, c.Close())
		})
	}
}

func TestOpen_ContenderWaitsWithoutOpeningFile(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			path := testPath(t, kind)
			holder := openTestCounter(t, kind, path, quietOptions())

			// With the file unlinked, a contender that opened it would
			// recreate it.
			require.NoError(t, os.Remove(path))

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err := Open(ctx, kind, path, quietOptions())
			require.Error(t, err)
			assert.True(t, IsLockTimeout(err), "got %v", err)
			assert.NoFileExists(t, path)

			// SQLite refuses to write an unlinked database, so the close
			// result is not checked.
			holder.Close()
		})
	}
}

func TestOpen_ClampsInitialUnique(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			opts := quietOptions()
			opts.InitialCount = 2
			opts.InitialUnique = 9

			c := openTestCounter(t, kind, testPath(t, kind), opts)
			defer c.Close()
			assert.Equal(t, uint32(2), c.Count())
			assert.Equal(t, uint32(2), c.Unique())
		})
	}
}

func TestError_Format(t *testing.T) {
	err := closedError("record hit", "/tmp/hits.dat")
	assert.Equal(t, "record hit /tmp/hits.dat: CLOSED: store is closed", err.Error())
	assert.False(t, IsIOError(err))
	assert.False(t, IsLockTimeout(err))
	assert.Nil(t, newError("op", "path", nil))
}
