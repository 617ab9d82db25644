package persist

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subzone/zonecore/internal/extradata"
	"github.com/subzone/zonecore/internal/mainloop"
	"github.com/subzone/zonecore/internal/player"
)

type rowKey struct {
	owner    OwnerType
	ownerID  int64
	group    string
	interval Interval
	key      string
}

type fakeRowStore struct {
	mu   sync.Mutex
	rows map[rowKey][]byte
}

func newFakeRowStore() *fakeRowStore {
	return &fakeRowStore{rows: make(map[rowKey][]byte)}
}

func (f *fakeRowStore) Put(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), body...)
	f.rows[rowKey{owner, ownerID, group, interval, key}] = cp
	return nil
}

func (f *fakeRowStore) Get(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[rowKey{owner, ownerID, group, interval, key}], nil
}

func (f *fakeRowStore) Delete(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, rowKey{owner, ownerID, group, interval, key})
	return nil
}

func (f *fakeRowStore) EndInterval(ctx context.Context, group string, interval Interval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.rows {
		if k.group == group && k.interval == interval {
			delete(f.rows, k)
		}
	}
	return nil
}

func runningStore(t *testing.T, rows RowStore) (*Store, *mainloop.Mainloop) {
	t.Helper()
	m := mainloop.New(slog.New(slog.DiscardHandler))
	s := NewStore(rows, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mdone := make(chan struct{})
	sdone := make(chan struct{})
	go func() { m.Run(ctx, func(time.Time) {}); close(mdone) }()
	go func() { s.Run(ctx); close(sdone) }()

	t.Cleanup(func() {
		cancel()
		m.Quit(mainloop.ExitNormal)
		<-mdone
		<-sdone
	})
	return s, m
}

func waitErr(t *testing.T, fn func(done func(error))) error {
	t.Helper()
	ch := make(chan error, 1)
	fn(func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("completion never fired")
		return nil
	}
}

func TestPutGetPlayerRoundTrips(t *testing.T) {
	rows := newFakeRowStore()
	s, _ := runningStore(t, rows)

	var statsKey = "stats"
	var stored []byte
	s.RegisterPlayerHandler(PlayerHandler{
		Key:      statsKey,
		Interval: IntervalGame,
		GetData:  func(p *player.Player) []byte { return []byte("deaths=3") },
		SetData:  func(p *player.Player, body []byte) { stored = body },
	})

	tbl := player.NewTable(extradata.NewRegistry[player.Player]())
	p := tbl.Accept(nil, player.ClientContinuum, 0)

	require.NoError(t, waitErr(t, func(done func(error)) { s.PutPlayer(p, "pub", done) }))
	require.NoError(t, waitErr(t, func(done func(error)) { s.GetPlayer(p, "pub", done) }))

	assert.Equal(t, []byte("deaths=3"), stored)
}

func TestPutPlayerZeroLengthDeletesRow(t *testing.T) {
	rows := newFakeRowStore()
	s, _ := runningStore(t, rows)

	produce := []byte("x")
	s.RegisterPlayerHandler(PlayerHandler{
		Key:      "k",
		Interval: IntervalGame,
		GetData:  func(p *player.Player) []byte { return produce },
		SetData:  func(p *player.Player, body []byte) {},
	})

	tbl := player.NewTable(extradata.NewRegistry[player.Player]())
	p := tbl.Accept(nil, player.ClientContinuum, 0)

	require.NoError(t, waitErr(t, func(done func(error)) { s.PutPlayer(p, "pub", done) }))
	rows.mu.Lock()
	_, ok := rows.rows[rowKey{OwnerPlayer, int64(p.PID), "pub", IntervalGame, "k"}]
	rows.mu.Unlock()
	assert.True(t, ok)

	produce = nil
	require.NoError(t, waitErr(t, func(done func(error)) { s.PutPlayer(p, "pub", done) }))
	rows.mu.Lock()
	_, ok = rows.rows[rowKey{OwnerPlayer, int64(p.PID), "pub", IntervalGame, "k"}]
	rows.mu.Unlock()
	assert.False(t, ok, "a zero-length GetData result must delete the row")
}

// Invariant #8 / E6 shape: after end_interval, a subsequent get sees
// no data from the previous interval row.
func TestEndIntervalClearsSubsequentGets(t *testing.T) {
	rows := newFakeRowStore()
	s, _ := runningStore(t, rows)

	var lastLoaded []byte
	s.RegisterPlayerHandler(PlayerHandler{
		Key:      "Stats",
		Interval: IntervalGame,
		GetData:  func(p *player.Player) []byte { return []byte("hits=7") },
		SetData:  func(p *player.Player, body []byte) { lastLoaded = body },
	})

	tbl := player.NewTable(extradata.NewRegistry[player.Player]())
	p := tbl.Accept(nil, player.ClientContinuum, 0)

	require.NoError(t, waitErr(t, func(done func(error)) { s.PutPlayer(p, "pub", done) }))

	ch := make(chan error, 1)
	s.EndInterval("pub", IntervalGame, func(err error) { ch <- err })
	require.NoError(t, <-ch)

	require.NoError(t, waitErr(t, func(done func(error)) { s.GetPlayer(p, "pub", done) }))
	assert.Nil(t, lastLoaded, "get after end_interval must see no data from the rotated-out generation")
}

func TestSaveAllFiresAfterPriorRequestsDrain(t *testing.T) {
	rows := newFakeRowStore()
	s, _ := runningStore(t, rows)

	s.RegisterPlayerHandler(PlayerHandler{
		Key:      "k",
		Interval: IntervalGame,
		GetData:  func(p *player.Player) []byte { return []byte("v") },
		SetData:  func(p *player.Player, body []byte) {},
	})

	tbl := player.NewTable(extradata.NewRegistry[player.Player]())
	p := tbl.Accept(nil, player.ClientContinuum, 0)

	s.PutPlayer(p, "pub", nil)
	s.PutPlayer(p, "pub", nil)

	done := make(chan struct{})
	s.SaveAll(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SaveAll never completed")
	}

	rows.mu.Lock()
	_, ok := rows.rows[rowKey{OwnerPlayer, int64(p.PID), "pub", IntervalGame, "k"}]
	rows.mu.Unlock()
	assert.True(t, ok)
}
