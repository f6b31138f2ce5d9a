package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

func testProcess(buf *bytes.Buffer) (*Process, *int) {
	code := new(int)
	*code = -1
	return &Process{
		Name:   "test",
		Logger: logger.New(logger.Options{ServiceName: "test", Output: buf}),
		Config: &config.Config{
			App: config.AppConfig{Env: "test"},
			DB: config.DBConfig{
				Driver: config.DBDriverSQLite,
				DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			},
		},
		exit: func(c int) { *code = c },
	}, code
}

func TestCloseRunsInReverseAndOnce(t *testing.T) {
	p, _ := testProcess(&bytes.Buffer{})
	var order []string
	p.OnClose("first", func() error { order = append(order, "first"); return nil })
	p.OnClose("second", func() error { order = append(order, "second"); return nil })

	p.Close()
	p.Close()
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestMustClosesAndExitsOnError(t *testing.T) {
	buf := &bytes.Buffer{}
	p, code := testProcess(buf)
	closed := false
	p.OnClose("redis", func() error { closed = true; return errors.New("already closed") })

	p.Must("load config", nil)
	assert.Equal(t, -1, *code)

	p.Must("connect redis", errors.New("dial tcp: refused"))
	assert.Equal(t, 1, *code)
	assert.True(t, closed)
	assert.Contains(t, buf.String(), "connect redis failed")
	assert.Contains(t, buf.String(), `"client":"redis"`)
}

func TestDatabaseMigratesSQLiteSchema(t *testing.T) {
	p, code := testProcess(&bytes.Buffer{})
	client := p.Database(context.Background())
	defer p.Close()

	require.Equal(t, -1, *code)
	for _, table := range []string{"subscription_payments", "partner_payments", "outbox_events", "outbox_dlq"} {
		assert.True(t, client.DB().Migrator().HasTable(table), table)
	}
}

func TestSignalContextCarriesService(t *testing.T) {
	buf := &bytes.Buffer{}
	p, _ := testProcess(buf)
	ctx, stop := p.SignalContext()
	defer stop()

	p.Logger.Info(ctx, "ready")
	assert.Contains(t, buf.String(), `"serviceKind":"test"`)
	assert.Contains(t, buf.String(), `"env":"test"`)
}
