package audit

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Store struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
}

func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, dialect: goqu.Dialect("mysql")}
}

func (s *Store) Insert(ctx context.Context, e Entry) error {
	var diffJSON any
	if len(e.Diff) > 0 {
		raw, err := json.Marshal(e.Diff)
		if err != nil {
			return err
		}
		diffJSON = raw
	}

	const q = `
	INSERT INTO audit_log
	(actor_id, action, resource_type, resource_id, success, message, diff, ip_address, user_agent, request_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

	_, err := s.db.ExecContext(ctx, q,
		nilIfEmpty(e.ActorID),
		string(e.Action),
		nilIfEmpty(e.ResourceType),
		nilIfEmpty(e.ResourceID),
		e.Success,
		nilIfEmpty(e.Message),
		diffJSON,
		nilIfEmpty(e.Client.IP),
		nilIfEmpty(e.Client.UserAgent),
		nilIfEmpty(e.Client.RequestID),
	)
	return err
}

func (s *Store) List(ctx context.Context, f LogFilter, p Page) ([]Log, int64, error) {
	base := s.dialect.From("audit_log")

	where := []goqu.Expression{}
	if f.Action != nil {
		where = append(where, goqu.C("action").Eq(string(*f.Action)))
	}
	if f.ActorID != nil {
		where = append(where, goqu.C("actor_id").Eq(*f.ActorID))
	}
	if f.Success != nil {
		where = append(where, goqu.C("success").Eq(*f.Success))
	}
	if f.From != nil {
		where = append(where, goqu.C("created_at").Gte(*f.From))
	}
	if f.To != nil {
		where = append(where, goqu.C("created_at").Lt(*f.To))
	}
	if len(where) > 0 {
		base = base.Where(where...)
	}

	order := goqu.C("created_at").Desc()
	if strings.EqualFold(p.Order, "asc") {
		order = goqu.C("created_at").Asc()
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	query, args, err := base.
		Select("audit_id", "actor_id", "action", "resource_type", "resource_id",
			"success", "message", "diff", "ip_address", "user_agent", "request_id", "created_at").
		Order(order).
		Limit(uint(p.Limit)).
		Offset(uint(p.Offset)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var (
			l        Log
			actor    sql.NullString
			resType  sql.NullString
			resID    sql.NullString
			message  sql.NullString
			rawDiff  []byte
			ip       sql.NullString
			ua       sql.NullString
			reqID    sql.NullString
			created  time.Time
			actionDB string
		)
		if err := rows.Scan(&l.AuditID, &actor, &actionDB, &resType, &resID,
			&l.Success, &message, &rawDiff, &ip, &ua, &reqID, &created); err != nil {
			return nil, 0, err
		}
		l.Action = Action(actionDB)
		l.ActorID = nullToPtr(actor)
		l.ResourceType = nullToPtr(resType)
		l.ResourceID = nullToPtr(resID)
		l.Message = nullToPtr(message)
		l.IPAddress = nullToPtr(ip)
		l.UserAgent = nullToPtr(ua)
		l.RequestID = nullToPtr(reqID)
		l.CreatedAt = created
		if len(rawDiff) > 0 {
			if err := json.Unmarshal(rawDiff, &l.Diff); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}
