package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{Pool: pool}
	if err := p.createTables(); err != nil {
		return nil, err
	}
	return p, nil
}

func (db *PostgresDB) createTables() error {
	_, err := db.Pool.Exec(context.Background(),
		`CREATE TABLE IF NOT EXISTS scans (
            id TEXT PRIMARY KEY,
            url TEXT NOT NULL,
            email TEXT,
            verdict TEXT,
            risk_score INT,
            confidence INT,
            result JSONB,
            findings JSONB,
            created_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS users (
            email TEXT PRIMARY KEY,
            id TEXT,
            admin BOOLEAN,
            key TEXT,
            hash BYTEA,
            created TIMESTAMP,
            updated TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS tokens (
            token TEXT PRIMARY KEY,
            email TEXT,
            expires_at TIMESTAMP,
            hash BYTEA
        );
        CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_scans_url ON scans(url);`)
	return err
}

func (db *PostgresDB) TestAndReconnect() error {
	return db.Pool.Ping(context.Background())
}

func (db *PostgresDB) Close() error {
	db.Pool.Close()
	return nil
}

func (db *PostgresDB) AddScan(sc ScanRecord) error {
	result, err := json.Marshal(sc.Result)
	if err != nil {
		return err
	}
	findings, err := json.Marshal(sc.Findings)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(context.Background(),
		`INSERT INTO scans (id, url, email, verdict, risk_score, confidence, result, findings, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            url = EXCLUDED.url,
            email = EXCLUDED.email,
            verdict = EXCLUDED.verdict,
            risk_score = EXCLUDED.risk_score,
            confidence = EXCLUDED.confidence,
            result = EXCLUDED.result,
            findings = EXCLUDED.findings,
            created_at = EXCLUDED.created_at`,
		sc.ID, sc.URL, sc.Email, sc.Verdict, sc.RiskScore, sc.Confidence, result, findings, sc.CreatedAt)
	return err
}

func (db *PostgresDB) GetScan(id string) (ScanRecord, error) {
	var sc ScanRecord
	var result, findings []byte
	err := db.Pool.QueryRow(context.Background(),
		"SELECT id, url, email, verdict, risk_score, confidence, result, findings, created_at FROM scans WHERE id = $1", id).Scan(
		&sc.ID, &sc.URL, &sc.Email, &sc.Verdict, &sc.RiskScore, &sc.Confidence, &result, &findings, &sc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sc, fmt.Errorf("scan %s not found", id)
		}
		return sc, err
	}
	if err := json.Unmarshal(result, &sc.Result); err != nil {
		return sc, fmt.Errorf("unmarshal scan result: %w", err)
	}
	if err := json.Unmarshal(findings, &sc.Findings); err != nil {
		return sc, fmt.Errorf("unmarshal scan findings: %w", err)
	}
	return sc, nil
}

func (db *PostgresDB) GetScans(since time.Time, limit int) ([]ScanRecord, error) {
	query := `SELECT id, url, email, verdict, risk_score, confidence, result, findings, created_at
        FROM scans WHERE created_at > $1 ORDER BY created_at DESC`
	args := []interface{}{since}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := db.Pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []ScanRecord
	for rows.Next() {
		var sc ScanRecord
		var result, findings []byte
		if err := rows.Scan(&sc.ID, &sc.URL, &sc.Email, &sc.Verdict, &sc.RiskScore, &sc.Confidence, &result, &findings, &sc.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(result, &sc.Result); err != nil {
			return nil, fmt.Errorf("unmarshal scan result: %w", err)
		}
		if err := json.Unmarshal(findings, &sc.Findings); err != nil {
			return nil, fmt.Errorf("unmarshal scan findings: %w", err)
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

func (db *PostgresDB) DeleteScan(id string) error {
	ct, err := db.Pool.Exec(context.Background(), "DELETE FROM scans WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("db error deleting scan: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("scan id %s not found", id)
	}
	return nil
}

func (db *PostgresDB) CleanScans(days int) error {
	_, err := db.Pool.Exec(context.Background(),
		"DELETE FROM scans WHERE created_at < NOW() - ($1 || ' days')::interval", days)
	return err
}

func (db *PostgresDB) GetUserByEmail(email string) (User, error) {
	var user User
	err := db.Pool.QueryRow(context.Background(),
		"SELECT email, id, admin, key, hash, created, updated FROM users WHERE email = $1", email).Scan(
		&user.Email, &user.ID, &user.Admin, &user.Key, &user.Hash, &user.Created, &user.Updated,
	)
	return user, err
}

func (db *PostgresDB) AddUser(u User) error {
	_, err := db.Pool.Exec(context.Background(), `
        INSERT INTO users (email, id, admin, key, hash, created, updated)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (email) DO UPDATE SET
            admin = EXCLUDED.admin,
            key = EXCLUDED.key,
            hash = EXCLUDED.hash,
            updated = EXCLUDED.updated
    `, u.Email, u.ID, u.Admin, u.Key, u.Hash, u.Created, u.Updated)
	return err
}

func (db *PostgresDB) DeleteUser(email string) error {
	_, err := db.Pool.Exec(context.Background(), "DELETE FROM users WHERE email = $1", email)
	return err
}

func (db *PostgresDB) GetAllUsers() ([]User, error) {
	rows, err := db.Pool.Query(context.Background(),
		"SELECT email, id, admin, key, hash, created, updated FROM users")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.Email, &user.ID, &user.Admin, &user.Key, &user.Hash, &user.Created, &user.Updated); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (db *PostgresDB) GetTokenByValue(tk string) (Token, error) {
	var token Token
	err := db.Pool.QueryRow(context.Background(),
		"SELECT token, email, expires_at, hash FROM tokens WHERE token = $1", tk).Scan(
		&token.Token, &token.Email, &token.ExpiresAt, &token.Hash,
	)
	return token, err
}

func (db *PostgresDB) SaveToken(t Token) error {
	_, err := db.Pool.Exec(context.Background(),
		"INSERT INTO tokens (token, email, expires_at, hash) VALUES ($1, $2, $3, $4)",
		t.Token, t.Email, t.ExpiresAt, t.Hash,
	)
	return err
}
