// Package postgres implements the Ripple store on PostgreSQL via the Grove
// ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	ripple "github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/audit"
	"github.com/ripplehq/ripple/bankrule"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/rule"
	ripplestore "github.com/ripplehq/ripple/store"
)

// compile-time interface check
var _ ripplestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("ripple/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("ripple/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Rule Store ====================

func (s *Store) CreateRule(ctx context.Context, r *rule.Rule) error {
	m := toRuleModel(r)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetRule(ctx context.Context, ruleID id.ID) (*rule.Rule, error) {
	m := new(ruleModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", ruleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ripple.ErrRuleNotFound
		}
		return nil, err
	}
	return fromRuleModel(m)
}

func (s *Store) UpdateRule(ctx context.Context, r *rule.Rule) error {
	m := toRuleModel(r)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrRuleNotFound)
}

func (s *Store) SetRuleActive(ctx context.Context, ruleID id.ID, active bool) error {
	res, err := s.pg.NewUpdate((*ruleModel)(nil)).
		Set("is_active = $1", active).
		Set("updated_at = $2", time.Now().UTC()).
		Where("id = $3", ruleID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrRuleNotFound)
}

func (s *Store) ListRules(ctx context.Context, orgID string, opts rule.ListOpts) ([]*rule.Rule, error) {
	var models []ruleModel
	q := s.pg.NewSelect(&models).Where("org_id = $1", orgID)

	if !opts.IncludeInactive {
		q = q.Where("is_active = true")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rulesFromModels(models)
}

func (s *Store) ListActiveRules(ctx context.Context, orgID string) ([]*rule.Rule, error) {
	var models []ruleModel
	if err := s.pg.NewSelect(&models).
		Where("org_id = $1", orgID).
		Where("is_active = true").
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return rulesFromModels(models)
}

func rulesFromModels(models []ruleModel) ([]*rule.Rule, error) {
	result := make([]*rule.Rule, len(models))
	for i := range models {
		r, err := fromRuleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Bank Rule Store ====================

func (s *Store) CreateBankRule(ctx context.Context, r *bankrule.Rule) error {
	m := toBankRuleModel(r)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetBankRule(ctx context.Context, ruleID id.ID) (*bankrule.Rule, error) {
	m := new(bankRuleModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", ruleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ripple.ErrBankRuleNotFound
		}
		return nil, err
	}
	return fromBankRuleModel(m)
}

func (s *Store) UpdateBankRule(ctx context.Context, r *bankrule.Rule) error {
	m := toBankRuleModel(r)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrBankRuleNotFound)
}

func (s *Store) SetBankRuleActive(ctx context.Context, ruleID id.ID, active bool) error {
	res, err := s.pg.NewUpdate((*bankRuleModel)(nil)).
		Set("is_active = $1", active).
		Set("updated_at = $2", time.Now().UTC()).
		Where("id = $3", ruleID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrBankRuleNotFound)
}

func (s *Store) ListBankRules(ctx context.Context, orgID string, opts bankrule.ListOpts) ([]*bankrule.Rule, error) {
	var models []bankRuleModel
	q := s.pg.NewSelect(&models).Where("org_id = $1", orgID)

	if !opts.IncludeInactive {
		q = q.Where("is_active = true")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("priority DESC, created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return bankRulesFromModels(models)
}

func (s *Store) ListActiveBankRules(ctx context.Context, orgID string) ([]*bankrule.Rule, error) {
	var models []bankRuleModel
	if err := s.pg.NewSelect(&models).
		Where("org_id = $1", orgID).
		Where("is_active = true").
		OrderExpr("priority DESC, created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return bankRulesFromModels(models)
}

func bankRulesFromModels(models []bankRuleModel) ([]*bankrule.Rule, error) {
	result := make([]*bankrule.Rule, len(models))
	for i := range models {
		r, err := fromBankRuleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Queue Store ====================

func (s *Store) Enqueue(ctx context.Context, it *queue.Item) error {
	m := toItemModel(it)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetItem(ctx context.Context, itemID id.ID) (*queue.Item, error) {
	m := new(itemModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", itemID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ripple.ErrItemNotFound
		}
		return nil, err
	}
	return fromItemModel(m)
}

func (s *Store) ClaimBatch(ctx context.Context, limit int, workerID string) ([]*queue.Item, error) {
	// Use raw SQL for the FOR UPDATE SKIP LOCKED claim pattern.
	var models []itemModel
	err := s.pg.NewRaw(`
		UPDATE ripple_queue_items
		SET status = 'claimed', claimed_by = $1, claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM ripple_queue_items
			WHERE status = 'pending' AND scheduled_for <= NOW()
			ORDER BY scheduled_for ASC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, workerID, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	result := make([]*queue.Item, len(models))
	for i := range models {
		it, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = it
	}
	return result, nil
}

func (s *Store) MarkDone(ctx context.Context, itemID id.ID) error {
	t := time.Now().UTC()
	res, err := s.pg.NewUpdate((*itemModel)(nil)).
		Set("status = $1", string(queue.StatusDone)).
		Set("attempt_count = attempt_count + 1").
		Set("claimed_by = ''").
		Set("claimed_at = NULL").
		Set("completed_at = $2", t).
		Set("updated_at = $3", t).
		Where("id = $4", itemID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrItemNotFound)
}

func (s *Store) Requeue(ctx context.Context, itemID id.ID, scheduledFor time.Time, lastError string) error {
	res, err := s.pg.NewUpdate((*itemModel)(nil)).
		Set("status = $1", string(queue.StatusPending)).
		Set("attempt_count = attempt_count + 1").
		Set("scheduled_for = $2", scheduledFor).
		Set("last_error = $3", lastError).
		Set("claimed_by = ''").
		Set("claimed_at = NULL").
		Set("updated_at = $4", time.Now().UTC()).
		Where("id = $5", itemID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrItemNotFound)
}

func (s *Store) MarkDead(ctx context.Context, itemID id.ID, lastError string) error {
	t := time.Now().UTC()
	res, err := s.pg.NewUpdate((*itemModel)(nil)).
		Set("status = $1", string(queue.StatusDead)).
		Set("attempt_count = attempt_count + 1").
		Set("last_error = $2", lastError).
		Set("claimed_by = ''").
		Set("claimed_at = NULL").
		Set("completed_at = $3", t).
		Set("updated_at = $4", t).
		Where("id = $5", itemID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrItemNotFound)
}

func (s *Store) RequeueDead(ctx context.Context, itemID id.ID) error {
	t := time.Now().UTC()
	res, err := s.pg.NewUpdate((*itemModel)(nil)).
		Set("status = $1", string(queue.StatusPending)).
		Set("attempt_count = 0").
		Set("last_error = ''").
		Set("completed_at = NULL").
		Set("scheduled_for = $2", t).
		Set("updated_at = $3", t).
		Where("id = $4", itemID.String()).
		Where("status = $5", string(queue.StatusDead)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing item from one in the wrong status.
		if _, getErr := s.GetItem(ctx, itemID); getErr != nil {
			return getErr
		}
		return ripple.ErrNotDead
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context, orgID string, opts queue.ListOpts) ([]*queue.Item, error) {
	var models []itemModel
	q := s.pg.NewSelect(&models).Where("org_id = $1", orgID)

	if opts.Status != nil {
		q = q.Where("status = $2", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*queue.Item, len(models))
	for i := range models {
		it, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = it
	}
	return result, nil
}

func (s *Store) CountByStatus(ctx context.Context, orgID string) (queue.Stats, error) {
	var stats queue.Stats
	counts := []struct {
		status string
		dst    *int64
	}{
		{string(queue.StatusPending), &stats.Pending},
		{string(queue.StatusClaimed), &stats.Claimed},
		{string(queue.StatusDone), &stats.Done},
		{string(queue.StatusFailed), &stats.Failed},
		{string(queue.StatusDead), &stats.Dead},
	}

	for _, c := range counts {
		q := s.pg.NewSelect((*itemModel)(nil)).Where("status = $1", c.status)
		if orgID != "" {
			q = q.Where("org_id = $2", orgID)
		}
		n, err := q.Count(ctx)
		if err != nil {
			return queue.Stats{}, err
		}
		*c.dst = n
	}
	return stats, nil
}

// ==================== Ledger Store ====================

func (s *Store) InsertRecord(ctx context.Context, rec *ledger.Record) error {
	m := toRecordModel(rec)
	res, err := s.pg.NewInsert(m).
		OnConflict("(provider, external_event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrDuplicateExternalEvent
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, provider, externalEventID string) (*ledger.Record, error) {
	m := new(recordModel)
	err := s.pg.NewSelect(m).
		Where("provider = $1", provider).
		Where("external_event_id = $2", externalEventID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ripple.ErrRecordNotFound
		}
		return nil, err
	}
	return fromRecordModel(m)
}

func (s *Store) SetRecordOutcome(ctx context.Context, provider, externalEventID, outcome string) error {
	res, err := s.pg.NewUpdate((*recordModel)(nil)).
		Set("outcome = $1", outcome).
		Where("provider = $2", provider).
		Where("external_event_id = $3", externalEventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return mustAffect(res, ripple.ErrRecordNotFound)
}

// ==================== Audit Store ====================

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	m := toAuditModel(e)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListAudit(ctx context.Context, orgID string, opts audit.ListOpts) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.pg.NewSelect(&models).Where("org_id = $1", orgID)

	if opts.Action != "" {
		q = q.Where("action = $2", opts.Action)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("recorded_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*audit.Entry, len(models))
	for i := range models {
		entry, err := fromAuditModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = entry
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// mustAffect converts a zero-row update into the given sentinel.
func mustAffect(res sql.Result, sentinel error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sentinel
	}
	return nil
}
