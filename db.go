package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"urlsentry/analysis"
)

// ScanRecord is the persisted form of one completed URL check.
type ScanRecord struct {
	ID         string                    `json:"id"`
	URL        string                    `json:"url"`
	Email      string                    `json:"email"`
	Verdict    string                    `json:"verdict"`
	RiskScore  int                       `json:"risk_score"`
	Confidence int                       `json:"confidence"`
	Result     analysis.CombinedAnalysis `json:"result"`
	Findings   []analysis.Finding        `json:"findings"`
	CreatedAt  time.Time                 `json:"created_at"`
}

type Database interface {
	AddScan(sc ScanRecord) error
	GetScan(id string) (ScanRecord, error)
	GetScans(since time.Time, limit int) ([]ScanRecord, error)
	DeleteScan(id string) error
	CleanScans(days int) error
	GetUserByEmail(email string) (User, error)
	AddUser(u User) error
	DeleteUser(email string) error
	GetAllUsers() ([]User, error)
	GetTokenByValue(tk string) (Token, error)
	SaveToken(t Token) error
	TestAndReconnect() error
	Close() error
}

type BboltDB struct {
	DB *bbolt.DB
}

func (db *BboltDB) TestAndReconnect() error {
	return nil
}

func (db *BboltDB) Close() error {
	return db.DB.Close()
}

func (db *BboltDB) AddScan(sc ScanRecord) error {
	return db.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("scans"))
		if err != nil {
			return err
		}
		v, err := sc.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put([]byte(sc.ID), v)
	})
}

func (db *BboltDB) GetScan(id string) (ScanRecord, error) {
	var sc ScanRecord
	err := db.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("scans"))
		if b == nil {
			return fmt.Errorf("scan %s not found", id)
		}
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("scan %s not found", id)
		}
		return sc.UnmarshalBinary(v)
	})
	return sc, err
}

func (db *BboltDB) GetScans(since time.Time, limit int) ([]ScanRecord, error) {
	var scans []ScanRecord
	err := db.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("scans"))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var sc ScanRecord
			if err := sc.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("unmarshal scan: %w", err)
			}
			if sc.CreatedAt.After(since) {
				scans = append(scans, sc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(scans, func(i, j int) bool {
		return scans[i].CreatedAt.After(scans[j].CreatedAt)
	})
	if limit > 0 && len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

func (db *BboltDB) DeleteScan(id string) error {
	return db.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("scans"))
		if err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}

func (db *BboltDB) CleanScans(days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)
	return db.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("scans"))
		if b == nil {
			return nil
		}
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sc ScanRecord
			if err := sc.UnmarshalBinary(v); err != nil {
				return nil
			}
			if sc.CreatedAt.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *BboltDB) GetUserByEmail(email string) (User, error) {
	var user User
	err := db.DB.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("users"))
		return err
	})
	if err != nil {
		return user, err
	}

	err = db.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("users"))
		v := b.Get([]byte(email))
		if v == nil {
			return fmt.Errorf("user %s not found", email)
		}
		return user.UnmarshalBinary(v)
	})
	return user, err
}

func (db *BboltDB) AddUser(u User) error {
	u.Updated = time.Now()
	return db.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("users"))
		if err != nil {
			return err
		}
		v, err := u.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put([]byte(u.Email), v)
	})
}

func (db *BboltDB) DeleteUser(email string) error {
	return db.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("users"))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		return b.Delete([]byte(email))
	})
}

func (db *BboltDB) GetAllUsers() ([]User, error) {
	var users []User
	err := db.DB.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("users"))
		return err
	})
	if err != nil {
		return nil, err
	}
	err = db.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("users"))
		return b.ForEach(func(k, v []byte) error {
			var user User
			if err := user.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, user)
			return nil
		})
	})
	return users, err
}

func (db *BboltDB) GetTokenByValue(tk string) (Token, error) {
	var token Token
	err := db.DB.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("tokens"))
		return err
	})
	if err != nil {
		return token, err
	}
	err = db.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte("tokens"))
		v := b.Get([]byte(tk))
		if v == nil {
			return fmt.Errorf("token not found")
		}
		return token.UnmarshalBinary(v)
	})
	return token, err
}

func (db *BboltDB) SaveToken(t Token) error {
	return db.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("tokens"))
		if err != nil {
			return err
		}
		v, err := t.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put([]byte(t.Token), v)
	})
}

func (sc *ScanRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(sc)
}

func (sc *ScanRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, sc)
}
