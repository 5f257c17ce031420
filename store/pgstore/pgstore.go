package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/tern/migrate"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/metrics"
	"github.com/cloudx-io/confidentialbid/store"
	"github.com/cloudx-io/confidentialbid/store/pgstore/migrations"
)

type Store struct {
	db     connOrTx
	logger log.Logger
}

var _ store.Store = (*Store)(nil)

type connOrTx interface {
	Query(ctx context.Context, q string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, q string, args ...any) pgx.Row
	Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error)
}

func NewStore(ctx context.Context, connStr string, logger log.Logger) (_ *Store, err error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if config.MaxConnIdleTime == 0 {
		config.MaxConnIdleTime = 5 * time.Minute
	}

	if config.MaxConns == 0 {
		config.MaxConns = 4
	}

	if config.ConnConfig.ConnectTimeout == 0 {
		config.ConnConfig.ConnectTimeout = 5 * time.Second
	}

	config.ConnConfig.Logger = &pgDebugLogAdapter{
		Logger: log.With(logger, "submodule", "postgres"),
	}

	config.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		for _, q := range []string{
			`set timezone='UTC'`,
			`set lock_timeout='5s'`,
			`set statement_timeout='5s'`,
		} {
			if _, err := c.Exec(ctx, q); err != nil {
				return fmt.Errorf("db connection setup query %q: %w", q, err)
			}
		}
		return nil
	}

	level.Debug(logger).Log("msg", "connecting")

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	defer func() {
		if err != nil {
			pool.Close()
		}
	}()

	{
		var (
			user = config.ConnConfig.User
			host = config.ConnConfig.Host
			name = config.ConnConfig.Database
			fn   = func() stat { return pool.Stat() }
			pc   = newPoolCollector(user, host, name, fn)
		)
		if err = prometheus.Register(pc); err != nil {
			return nil, fmt.Errorf("metrics registration failed: %w", err)
		}
	}

	if err = pool.AcquireFunc(ctx, func(c *pgxpool.Conn) error {
		return migrateDB(ctx, c.Conn(), logger)
	}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{db: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	switch x := s.db.(type) {
	case *pgxpool.Pool:
		x.Close()
		return nil
	case pgx.Tx:
		return nil
	default:
		return fmt.Errorf("close with unknown DB type %T", s.db)
	}
}

func migrateDB(ctx context.Context, conn *pgx.Conn, logger log.Logger) error {
	m, err := migrate.NewMigratorEx(ctx, conn, "public.schema_version", &migrate.MigratorOptions{
		MigratorFS: migrations.FS,
	})
	if err != nil {
		return fmt.Errorf("new migrator: %w", err)
	}

	if err = m.LoadMigrations("."); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	if err = m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	level.Debug(logger).Log("msg", "migrations applied", "count", len(m.Migrations))
	return nil
}

func (s *Store) Transact(ctx context.Context, f func(store.Store) error) error {
	retryable := func(err error) bool {
		if pgerr := &(pgconn.PgError{}); errors.As(err, &pgerr) {
			if pgerr.Code == "40001" { // concurrent updates
				return true
			}
		}
		return false
	}

	var err error
	for try, max := 1, 3; try <= max; try++ {
		err = s.transactDirect(ctx, f)
		switch {
		case err == nil:
			return nil
		case retryable(err):
			transactConflicts.Inc()
			level.Debug(s.logger).Log("msg", "transaction conflict, retrying", "attempt", try, "max", max, "err", err)
		default:
			return err
		}
	}

	return err
}

func (s *Store) transactDirect(ctx context.Context, f func(store.Store) error) error {
	begin := time.Now()
	enter := func(tx pgx.Tx) error {
		metrics.OpWait("pgstore_transact", time.Since(begin))
		return f(&Store{db: tx, logger: s.logger})
	}

	switch x := s.db.(type) {
	case *pgxpool.Pool:
		return x.BeginTxFunc(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, enter)
	case pgx.Tx:
		return x.BeginFunc(ctx, enter)
	default:
		return fmt.Errorf("unknown DB type %T", s.db)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRow(ctx, `select 1`).Scan(&n)
}

//
// auctions
//

const insertAuctionQuery = `
insert into auctions (address, organizer, status, record)
values ($1, $2, $3, $4)
`

func (s *Store) InsertAuction(ctx context.Context, a *core.Auction) error {
	record, err := store.EncodeAuction(a)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, insertAuctionQuery, a.Address, a.Organizer, a.Status.String(), record); err != nil {
		return convertError(err)
	}

	return nil
}

const updateAuctionQuery = `
update auctions
set status = $2, record = $3, updated_at = now()
where address = $1
`

func (s *Store) UpdateAuction(ctx context.Context, a *core.Auction) error {
	record, err := store.EncodeAuction(a)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(ctx, updateAuctionQuery, a.Address, a.Status.String(), record)
	if err != nil {
		return fmt.Errorf("execute update: %w", err)
	}

	if result.RowsAffected() != 1 {
		return store.ErrNotFound
	}

	return nil
}

const selectAuctionQuery = `select record from auctions where address = $1`

func (s *Store) SelectAuction(ctx context.Context, addr core.Address) (*core.Auction, error) {
	var record []byte
	if err := s.db.QueryRow(ctx, selectAuctionQuery, addr).Scan(&record); err != nil {
		return nil, convertError(err)
	}
	return store.DecodeAuction(record)
}

const listAuctionsQuery = `select record from auctions order by created_at, address`

func (s *Store) ListAuctions(ctx context.Context) ([]*core.Auction, error) {
	rows, err := s.db.Query(ctx, listAuctionsQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var auctions []*core.Auction
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		a, err := store.DecodeAuction(record)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}

	return auctions, rows.Err()
}

//
// bids
//

const insertBidQuery = `
insert into bids (address, auction, bidder, record)
values ($1, $2, $3, $4)
`

func (s *Store) InsertBid(ctx context.Context, b *core.Bid) error {
	record, err := store.EncodeBid(b)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, insertBidQuery, b.Address, b.Auction, b.Bidder, record); err != nil {
		return convertError(err)
	}

	return nil
}

const updateBidQuery = `
update bids
set record = $3, updated_at = now()
where auction = $1 and bidder = $2
`

func (s *Store) UpdateBid(ctx context.Context, b *core.Bid) error {
	record, err := store.EncodeBid(b)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(ctx, updateBidQuery, b.Auction, b.Bidder, record)
	if err != nil {
		return fmt.Errorf("execute update: %w", err)
	}

	if result.RowsAffected() != 1 {
		return store.ErrNotFound
	}

	return nil
}

const selectBidQuery = `select record from bids where auction = $1 and bidder = $2`

func (s *Store) SelectBid(ctx context.Context, auction, bidder core.Address) (*core.Bid, error) {
	var record []byte
	if err := s.db.QueryRow(ctx, selectBidQuery, auction, bidder).Scan(&record); err != nil {
		return nil, convertError(err)
	}
	return store.DecodeBid(record)
}

const listBidsQuery = `select record from bids where auction = $1 order by seq`

func (s *Store) ListBids(ctx context.Context, auction core.Address) ([]*core.Bid, error) {
	rows, err := s.db.Query(ctx, listBidsQuery, auction)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	bids := []*core.Bid{}
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		b, err := store.DecodeBid(record)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}

	return bids, rows.Err()
}

//
//
//

func convertError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if pgerr := &(pgconn.PgError{}); errors.As(err, &pgerr) && pgerr.Code == "23505" { // unique_violation
		return store.ErrAlreadyExists
	}
	return err
}

type pgDebugLogAdapter struct{ log.Logger }

func (a *pgDebugLogAdapter) Log(ctx context.Context, pgxlevel pgx.LogLevel, msg string, data map[string]interface{}) {
	keyvals := []interface{}{
		"pgxlevel", pgxlevel.String(),
		"msg", msg,
	}
	for k, v := range data {
		keyvals = append(keyvals, k, fmt.Sprintf("%v", v))
	}
	level.Debug(a.Logger).Log(keyvals...)
}
