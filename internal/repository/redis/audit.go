package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// AuditConfig configures the Redis-backed audit store.
type AuditConfig struct {
	Key        string
	MaxRecords int
}

// AuditRepository persists audit records in a capped Redis list, newest at
// the head. LPUSH followed by LTRIM keeps the cap enforced per append; the
// pipeline makes the pair atomic enough that the list never grows unbounded.
type AuditRepository struct {
	client *redis.Client
	cfg    AuditConfig
}

// NewAuditRepository constructs a repository using the provided client.
func NewAuditRepository(client *redis.Client, cfg AuditConfig) *AuditRepository {
	if cfg.Key == "" {
		cfg.Key = "access:audit"
	}
	if cfg.MaxRecords < 1 {
		cfg.MaxRecords = 1000
	}
	return &AuditRepository{client: client, cfg: cfg}
}

type auditDocument struct {
	ID           string         `json:"id"`
	SubjectID    string         `json:"subject_id"`
	SubjectEmail string         `json:"subject_email,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Append stores the record and trims the list back to the cap.
func (r *AuditRepository) Append(ctx context.Context, rec domain.AuditRecord) error {
	payload, err := json.Marshal(toDocument(rec))
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.cfg.Key, payload)
	pipe.LTrim(ctx, r.cfg.Key, 0, int64(r.cfg.MaxRecords-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append audit record: %w", err)
	}
	return nil
}

// Query loads the retained records (head of the list is newest) and filters
// in memory. The retained set is bounded by the cap, so the scan is cheap.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	raw, err := r.client.LRange(ctx, r.cfg.Key, 0, int64(r.cfg.MaxRecords-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read audit records: %w", err)
	}

	var out []domain.AuditRecord
	for _, item := range raw {
		var doc auditDocument
		if err := json.Unmarshal([]byte(item), &doc); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		rec := fromDocument(doc)
		if !filter.Matches(rec) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports how many records are currently retained.
func (r *AuditRepository) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.cfg.Key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis audit length: %w", err)
	}
	return int(n), nil
}

func toDocument(rec domain.AuditRecord) auditDocument {
	return auditDocument{
		ID:           rec.ID,
		SubjectID:    rec.SubjectID,
		SubjectEmail: rec.SubjectEmail,
		Action:       rec.Action,
		Resource:     rec.Resource,
		Details:      rec.Details,
		ClientIP:     rec.ClientIP,
		UserAgent:    rec.UserAgent,
		CreatedAt:    rec.CreatedAt,
		Success:      rec.Success,
		ErrorMessage: rec.ErrorMessage,
	}
}

func fromDocument(doc auditDocument) domain.AuditRecord {
	return domain.AuditRecord{
		ID:           doc.ID,
		SubjectID:    doc.SubjectID,
		SubjectEmail: doc.SubjectEmail,
		Action:       doc.Action,
		Resource:     doc.Resource,
		Details:      doc.Details,
		ClientIP:     doc.ClientIP,
		UserAgent:    doc.UserAgent,
		CreatedAt:    doc.CreatedAt,
		Success:      doc.Success,
		ErrorMessage: doc.ErrorMessage,
	}
}
